// Package cluster groups fingerprints into duplicate sets.
//
// Every unordered pair of items is compared; pairs within the threshold are
// linked and the connected components of size two or more are returned.
// Grouping is transitive: two members may exceed the threshold when a chain of
// closer members links them.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

var (
	// ErrMixedResolution is returned when items were fingerprinted at different grid sizes.
	ErrMixedResolution = errors.New("fingerprints have mixed resolutions")
	// ErrInvalidThreshold is returned for a negative distance threshold.
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrDuplicateID is returned when two items share an identifier.
	ErrDuplicateID = errors.New("duplicate item id")
)

// Item is one file and its fingerprint.
type Item struct {
	ID          string
	Fingerprint fingerprint.Fingerprint
}

// Group is a set of linked items.
type Group struct {
	Members     []string `json:"members"`
	MaxDistance int      `json:"max_distance"` // largest distance among the links inside the group
}

type edge struct {
	a, b     int32
	distance int32
}

// Cluster partitions items into duplicate groups. Pairs are compared on up to
// workers goroutines (runtime.NumCPU when workers <= 0). Members are sorted by
// ID; groups are ordered by size descending, then by first member.
func Cluster(ctx context.Context, items []Item, threshold, workers int) ([]Group, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	if err := validate(items); err != nil {
		return nil, err
	}
	if len(items) < 2 {
		return nil, nil
	}

	edges, err := findEdges(ctx, items, threshold, workers)
	if err != nil {
		return nil, err
	}

	uf := newUnionFind(len(items))
	for _, e := range edges {
		uf.union(int(e.a), int(e.b))
	}
	return extractGroups(uf, items, edges), nil
}

func validate(items []Item) error {
	if len(items) == 0 {
		return nil
	}
	res := items[0].Fingerprint.Resolution
	want := fingerprint.ByteLen(res)
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.Fingerprint.Resolution != res || len(it.Fingerprint.Bits) != want {
			return fmt.Errorf("%w: %q has resolution %d, expected %d",
				ErrMixedResolution, it.ID, it.Fingerprint.Resolution, res)
		}
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// findEdges compares all pairs. Rows are dealt round-robin so the triangular
// workload spreads evenly; each worker fills its own edge list.
func findEdges(ctx context.Context, items []Item, threshold, workers int) ([]edge, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	n := len(items)
	workers = min(workers, n-1)

	local := make([][]edge, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			var out []edge
			for i := w; i < n; i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				bi := items[i].Fingerprint.Bits
				for j := i + 1; j < n; j++ {
					d := fingerprint.HammingDistance(bi, items[j].Fingerprint.Bits)
					if d <= threshold {
						out = append(out, edge{a: int32(i), b: int32(j), distance: int32(d)})
					}
				}
			}
			local[w] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comparing fingerprints: %w", err)
	}

	var total int
	for _, l := range local {
		total += len(l)
	}
	edges := make([]edge, 0, total)
	for _, l := range local {
		edges = append(edges, l...)
	}
	return edges, nil
}

// unionFind is a disjoint-set forest with path compression and union by rank.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// extractGroups collects components of size >= 2 in a deterministic order.
func extractGroups(uf *unionFind, items []Item, edges []edge) []Group {
	members := make(map[int][]string)
	for i, it := range items {
		root := uf.find(i)
		members[root] = append(members[root], it.ID)
	}
	maxDist := make(map[int]int)
	for _, e := range edges {
		root := uf.find(int(e.a))
		maxDist[root] = max(maxDist[root], int(e.distance))
	}

	var groups []Group
	for root, ids := range members {
		if len(ids) < 2 {
			continue
		}
		slices.Sort(ids)
		groups = append(groups, Group{Members: ids, MaxDistance: maxDist[root]})
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if len(a.Members) != len(b.Members) {
			return len(b.Members) - len(a.Members)
		}
		return strings.Compare(a.Members[0], b.Members[0])
	})
	return groups
}
