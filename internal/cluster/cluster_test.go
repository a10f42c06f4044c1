package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// fp builds a resolution-16 fingerprint with the given bits set.
func fp(set ...int) fingerprint.Fingerprint {
	f := fingerprint.Fingerprint{Resolution: 16, Bits: make([]byte, fingerprint.ByteLen(16))}
	for _, i := range set {
		f.Bits[i/8] |= 0x80 >> (i % 8)
	}
	return f
}

func memberSets(groups []Group) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.Members
	}
	return out
}

func TestCluster(t *testing.T) {
	tests := []struct {
		name      string
		items     []Item
		threshold int
		want      [][]string
	}{
		{
			name:      "empty",
			items:     nil,
			threshold: 5,
			want:      [][]string{},
		},
		{
			name:      "single",
			items:     []Item{{"a", fp(1)}},
			threshold: 5,
			want:      [][]string{},
		},
		{
			name:      "identical pair",
			items:     []Item{{"b", fp(1, 2)}, {"a", fp(1, 2)}},
			threshold: 0,
			want:      [][]string{{"a", "b"}},
		},
		{
			name:      "distance 3 with threshold 0",
			items:     []Item{{"a", fp()}, {"b", fp(10, 20, 30)}},
			threshold: 0,
			want:      [][]string{},
		},
		{
			name:      "distance 3 with threshold 3",
			items:     []Item{{"a", fp()}, {"b", fp(10, 20, 30)}},
			threshold: 3,
			want:      [][]string{{"a", "b"}},
		},
		{
			name: "transitive chain",
			// a-b distance 2, b-c distance 2, a-c distance 4
			items:     []Item{{"a", fp()}, {"b", fp(1, 2)}, {"c", fp(1, 2, 3, 4)}},
			threshold: 2,
			want:      [][]string{{"a", "b", "c"}},
		},
		{
			name: "two groups ordered by size",
			items: []Item{
				{"z1", fp(100)}, {"z2", fp(100)},
				{"m1", fp(200, 201, 202, 203, 204, 205, 206, 207, 208, 209)},
				{"m2", fp(200, 201, 202, 203, 204, 205, 206, 207, 208, 209)},
				{"m3", fp(200, 201, 202, 203, 204, 205, 206, 207, 208)},
				{"lonely", fp(50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60, 61, 62, 63)},
			},
			threshold: 1,
			want:      [][]string{{"m1", "m2", "m3"}, {"z1", "z2"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			groups, err := Cluster(context.Background(), tc.items, tc.threshold, 4)
			if err != nil {
				t.Fatalf("Cluster() error = %v", err)
			}
			got := memberSets(groups)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Cluster() = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestClusterMaxDistance(t *testing.T) {
	items := []Item{{"a", fp()}, {"b", fp(1, 2)}, {"c", fp(1, 2, 3)}}
	groups, err := Cluster(context.Background(), items, 2, 1)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("Cluster() returned %d groups; want 1", len(groups))
	}
	if groups[0].MaxDistance != 2 {
		t.Errorf("MaxDistance = %d; want 2", groups[0].MaxDistance)
	}
}

func TestClusterErrors(t *testing.T) {
	mixed := []Item{
		{"a", fp(1)},
		{"b", fingerprint.Fingerprint{Resolution: 8, Bits: make([]byte, 8)}},
	}
	if _, err := Cluster(context.Background(), mixed, 5, 2); !errors.Is(err, ErrMixedResolution) {
		t.Errorf("Cluster(mixed) error = %v; want ErrMixedResolution", err)
	}

	if _, err := Cluster(context.Background(), []Item{{"a", fp()}, {"b", fp()}}, -1, 2); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("Cluster(threshold=-1) error = %v; want ErrInvalidThreshold", err)
	}

	dup := []Item{{"a", fp()}, {"a", fp(3)}}
	if _, err := Cluster(context.Background(), dup, 5, 2); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Cluster(duplicate ids) error = %v; want ErrDuplicateID", err)
	}
}

func TestClusterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Cluster(ctx, randomItems(rand.New(rand.NewPCG(1, 1)), 50), 40, 4)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Cluster(cancelled) error = %v; want context.Canceled", err)
	}
}

func TestClusterOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	items := randomItems(rng, 120)

	want, err := Cluster(context.Background(), items, 6, 1)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(want) == 0 {
		t.Fatal("fixture produced no groups")
	}

	for workers := 1; workers <= 9; workers++ {
		shuffled := append([]Item(nil), items...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := Cluster(context.Background(), shuffled, 6, workers)
		if err != nil {
			t.Fatalf("workers=%d: Cluster() error = %v", workers, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("workers=%d: groups differ after shuffling\n got  %v\n want %v", workers, got, want)
		}
	}
}

func TestClusterThresholdMonotonic(t *testing.T) {
	items := randomItems(rand.New(rand.NewPCG(5, 8)), 80)

	groupOf := func(groups []Group) map[string]int {
		m := make(map[string]int)
		for gi, g := range groups {
			for _, id := range g.Members {
				m[id] = gi
			}
		}
		return m
	}

	prev, err := Cluster(context.Background(), items, 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	for threshold := 1; threshold <= 12; threshold++ {
		next, err := Cluster(context.Background(), items, threshold, 3)
		if err != nil {
			t.Fatal(err)
		}
		nextOf := groupOf(next)
		for _, g := range prev {
			gi, ok := nextOf[g.Members[0]]
			if !ok {
				t.Fatalf("threshold %d dropped %s", threshold, g.Members[0])
			}
			for _, id := range g.Members[1:] {
				if nextOf[id] != gi {
					t.Errorf("threshold %d split group %v", threshold, g.Members)
				}
			}
		}
		prev = next
	}
}

// randomItems builds families of near-identical fingerprints so that several
// thresholds produce non-trivial groups.
func randomItems(rng *rand.Rand, n int) []Item {
	items := make([]Item, 0, n)
	var base fingerprint.Fingerprint
	for i := range n {
		if i%4 == 0 {
			base = fp()
			for range 128 {
				bit := rng.IntN(256)
				base.Bits[bit/8] |= 0x80 >> (bit % 8)
			}
		}
		f := fingerprint.Fingerprint{Resolution: 16, Bits: append([]byte(nil), base.Bits...)}
		for range rng.IntN(5) {
			bit := rng.IntN(256)
			f.Bits[bit/8] ^= 0x80 >> (bit % 8)
		}
		items = append(items, Item{ID: fmt.Sprintf("img-%03d", i), Fingerprint: f})
	}
	return items
}
