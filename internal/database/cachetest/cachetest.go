// Package cachetest runs the behaviour every database.Cache implementation
// must share. Backend tests call Run with a constructor for an empty cache.
package cachetest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/contentid"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// Run executes the conformance suite. open must return an empty cache; Run
// closes it when each subtest ends.
func Run(t *testing.T, open func(t *testing.T) database.Cache) {
	tests := []struct {
		name string
		fn   func(t *testing.T, c database.Cache)
	}{
		{"LookupMissing", testLookupMissing},
		{"UpsertFile", testUpsertFile},
		{"FingerprintKey", testFingerprintKey},
		{"InsertOrIgnore", testInsertOrIgnore},
		{"ConcurrentInsert", testConcurrentInsert},
		{"DedupInvariant", testDedupInvariant},
		{"RemoveMissingThenOrphans", testRemoveMissingThenOrphans},
		{"RemoveFile", testRemoveFile},
		{"ClearAll", testClearAll},
		{"Entries", testEntries},
		{"Stats", testStats},
		{"SnapshotRoundTrip", testSnapshotRoundTrip},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := open(t)
			defer c.Close()
			tc.fn(t, c)
		})
	}
}

// Digest returns a deterministic digest derived from s.
func Digest(s string) contentid.Digest {
	return contentid.Digest(sha256.Sum256([]byte(s)))
}

// Fingerprint returns a fingerprint at resolution 16 whose bytes are all b.
func Fingerprint(b byte) fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Resolution: 16, Bits: bytes.Repeat([]byte{b}, fingerprint.ByteLen(16))}
}

func file(path, content string, size int64) database.StoredFile {
	return database.StoredFile{
		Path:    path,
		Size:    size,
		ModTime: time.Unix(1700000000, 123456789),
		Digest:  Digest(content),
	}
}

func storedFP(content string, size int64, fp fingerprint.Fingerprint) database.StoredFingerprint {
	return database.StoredFingerprint{Digest: Digest(content), Size: size, Fingerprint: fp, CreatedAt: time.Now()}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func testLookupMissing(t *testing.T, c database.Cache) {
	ctx := context.Background()
	f, err := c.LookupByPath(ctx, "/nope.jpg")
	mustNoErr(t, err)
	if f != nil {
		t.Errorf("LookupByPath(missing) = %+v; want nil", f)
	}
	fp, err := c.LookupFingerprint(ctx, Digest("x"), 1, 16)
	mustNoErr(t, err)
	if fp != nil {
		t.Errorf("LookupFingerprint(missing) = %v; want nil", fp)
	}
}

func testUpsertFile(t *testing.T, c database.Cache) {
	ctx := context.Background()
	f := file("/photos/a.jpg", "a", 10)
	mustNoErr(t, c.UpsertFile(ctx, f))

	got, err := c.LookupByPath(ctx, f.Path)
	mustNoErr(t, err)
	if got == nil {
		t.Fatal("LookupByPath() = nil after upsert")
	}
	if got.Size != f.Size || got.Digest != f.Digest || !got.ModTime.Equal(f.ModTime) {
		t.Errorf("LookupByPath() = %+v; want %+v", got, f)
	}

	changed := file("/photos/a.jpg", "a2", 11)
	changed.ModTime = f.ModTime.Add(time.Second)
	mustNoErr(t, c.UpsertFile(ctx, changed))
	got, err = c.LookupByPath(ctx, f.Path)
	mustNoErr(t, err)
	if got.Size != 11 || got.Digest != Digest("a2") || !got.ModTime.Equal(changed.ModTime) {
		t.Errorf("LookupByPath() after update = %+v; want %+v", got, changed)
	}
}

func testFingerprintKey(t *testing.T, c database.Cache) {
	ctx := context.Background()
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0xAA))))

	got, err := c.LookupFingerprint(ctx, Digest("a"), 10, 16)
	mustNoErr(t, err)
	if got == nil || !got.Equal(Fingerprint(0xAA)) {
		t.Fatalf("LookupFingerprint() = %v; want %s", got, Fingerprint(0xAA))
	}

	if got, _ := c.LookupFingerprint(ctx, Digest("a"), 11, 16); got != nil {
		t.Error("size mismatch returned a fingerprint")
	}
	if got, _ := c.LookupFingerprint(ctx, Digest("a"), 10, 32); got != nil {
		t.Error("resolution mismatch returned a fingerprint")
	}
	if got, _ := c.LookupFingerprint(ctx, Digest("b"), 10, 16); got != nil {
		t.Error("digest mismatch returned a fingerprint")
	}
}

func testInsertOrIgnore(t *testing.T, c database.Cache) {
	ctx := context.Background()
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x01))))
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x02))))

	got, err := c.LookupFingerprint(ctx, Digest("a"), 10, 16)
	mustNoErr(t, err)
	if got == nil || !got.Equal(Fingerprint(0x01)) {
		t.Errorf("second insert replaced the fingerprint: got %v", got)
	}
	stats, err := c.Stats(ctx)
	mustNoErr(t, err)
	if stats.Fingerprints != 1 {
		t.Errorf("Stats().Fingerprints = %d; want 1", stats.Fingerprints)
	}
}

func testConcurrentInsert(t *testing.T, c database.Cache) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.UpsertFingerprint(ctx, storedFP("same", 42, Fingerprint(0x0F))); err != nil {
				errs <- err
			}
			if err := c.UpsertFile(ctx, file(fmt.Sprintf("/copy-%02d.jpg", i), "same", 42)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent upsert: %v", err)
	}

	stats, err := c.Stats(ctx)
	mustNoErr(t, err)
	if stats.Fingerprints != 1 || stats.Files != 16 {
		t.Errorf("Stats() = %+v; want 1 fingerprint and 16 files", stats)
	}
}

func testDedupInvariant(t *testing.T, c database.Cache) {
	ctx := context.Background()
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x33))))
	mustNoErr(t, c.UpsertFile(ctx, file("/a.jpg", "a", 10)))
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x33))))
	mustNoErr(t, c.UpsertFile(ctx, file("/b.jpg", "a", 10)))

	for _, p := range []string{"/a.jpg", "/b.jpg"} {
		f, err := c.LookupByPath(ctx, p)
		mustNoErr(t, err)
		fp, err := c.LookupFingerprint(ctx, f.Digest, f.Size, 16)
		mustNoErr(t, err)
		if fp == nil || !fp.Equal(Fingerprint(0x33)) {
			t.Errorf("%s resolved to %v", p, fp)
		}
	}
	stats, err := c.Stats(ctx)
	mustNoErr(t, err)
	if stats.Files != 2 || stats.Fingerprints != 1 || stats.UniqueContents != 1 {
		t.Errorf("Stats() = %+v; want 2 files, 1 fingerprint, 1 unique content", stats)
	}
	if stats.DedupRatio != 2 {
		t.Errorf("Stats().DedupRatio = %v; want 2", stats.DedupRatio)
	}
}

func testRemoveMissingThenOrphans(t *testing.T, c database.Cache) {
	ctx := context.Background()
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x01))))
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("c", 30, Fingerprint(0x03))))
	mustNoErr(t, c.UpsertFile(ctx, file("/a.jpg", "a", 10)))
	mustNoErr(t, c.UpsertFile(ctx, file("/b.jpg", "a", 10)))
	mustNoErr(t, c.UpsertFile(ctx, file("/c.jpg", "c", 30)))

	// b.jpg and c.jpg were deleted from disk
	removed, err := c.RemoveMissingFiles(ctx, map[string]struct{}{"/a.jpg": {}})
	mustNoErr(t, err)
	if removed != 2 {
		t.Errorf("RemoveMissingFiles() = %d; want 2", removed)
	}
	if f, _ := c.LookupByPath(ctx, "/b.jpg"); f != nil {
		t.Error("/b.jpg still recorded")
	}

	orphans, err := c.RemoveOrphanFingerprints(ctx)
	mustNoErr(t, err)
	if orphans != 1 {
		t.Errorf("RemoveOrphanFingerprints() = %d; want 1", orphans)
	}
	if fp, _ := c.LookupFingerprint(ctx, Digest("a"), 10, 16); fp == nil {
		t.Error("fingerprint still referenced by /a.jpg was removed")
	}
	if fp, _ := c.LookupFingerprint(ctx, Digest("c"), 30, 16); fp != nil {
		t.Error("orphaned fingerprint survived")
	}
}

func testRemoveFile(t *testing.T, c database.Cache) {
	ctx := context.Background()
	mustNoErr(t, c.UpsertFile(ctx, file("/broken.jpg", "broken", 5)))
	mustNoErr(t, c.RemoveFile(ctx, "/broken.jpg"))
	if f, _ := c.LookupByPath(ctx, "/broken.jpg"); f != nil {
		t.Error("RemoveFile() left the record")
	}
	mustNoErr(t, c.RemoveFile(ctx, "/never-seen.jpg"))
}

func testClearAll(t *testing.T, c database.Cache) {
	ctx := context.Background()
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x01))))
	mustNoErr(t, c.UpsertFile(ctx, file("/a.jpg", "a", 10)))
	mustNoErr(t, c.ClearAll(ctx))

	stats, err := c.Stats(ctx)
	mustNoErr(t, err)
	if stats.Files != 0 || stats.Fingerprints != 0 {
		t.Errorf("Stats() after ClearAll = %+v; want empty", stats)
	}
}

func testEntries(t *testing.T, c database.Cache) {
	ctx := context.Background()
	fp32 := fingerprint.Fingerprint{Resolution: 32, Bits: bytes.Repeat([]byte{0x11}, fingerprint.ByteLen(32))}
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x01))))
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, fp32)))
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("b", 20, Fingerprint(0x02))))
	mustNoErr(t, c.UpsertFile(ctx, file("/z.jpg", "a", 10)))
	mustNoErr(t, c.UpsertFile(ctx, file("/y.jpg", "b", 20)))
	mustNoErr(t, c.UpsertFile(ctx, file("/x.jpg", "unhashed", 5)))

	entries, err := c.Entries(ctx, 16)
	mustNoErr(t, err)
	if len(entries) != 2 || entries[0].Path != "/y.jpg" || entries[1].Path != "/z.jpg" {
		t.Fatalf("Entries(16) = %+v; want /y.jpg and /z.jpg", entries)
	}
	if !entries[1].Fingerprint.Equal(Fingerprint(0x01)) {
		t.Errorf("Entries(16)[1] fingerprint = %s", entries[1].Fingerprint)
	}

	entries, err = c.Entries(ctx, 32)
	mustNoErr(t, err)
	if len(entries) != 1 || !entries[0].Fingerprint.Equal(fp32) {
		t.Errorf("Entries(32) = %+v; want only /z.jpg", entries)
	}

	paths, err := c.ListPaths(ctx)
	mustNoErr(t, err)
	if len(paths) != 3 || paths[0] != "/x.jpg" {
		t.Errorf("ListPaths() = %v; want 3 sorted paths", paths)
	}

	stats, err := c.Stats(ctx)
	mustNoErr(t, err)
	if stats.ByResolution[16] != 2 || stats.ByResolution[32] != 1 {
		t.Errorf("Stats().ByResolution = %v; want 16:2 32:1", stats.ByResolution)
	}
}

func testStats(t *testing.T, c database.Cache) {
	stats, err := c.Stats(context.Background())
	mustNoErr(t, err)
	if stats.Files != 0 || stats.Fingerprints != 0 || stats.DedupRatio != 0 {
		t.Errorf("Stats() on empty cache = %+v", stats)
	}
}

func testSnapshotRoundTrip(t *testing.T, c database.Cache) {
	ctx := context.Background()
	mustNoErr(t, c.UpsertFingerprint(ctx, storedFP("a", 10, Fingerprint(0x5A))))
	mustNoErr(t, c.UpsertFile(ctx, file("/a.jpg", "a", 10)))
	mustNoErr(t, c.UpsertFile(ctx, file("/b.jpg", "a", 10)))

	var buf bytes.Buffer
	snap, err := database.Export(ctx, c, &buf)
	mustNoErr(t, err)
	if len(snap.Files) != 2 || len(snap.Fingerprints) != 1 {
		t.Fatalf("Export() = %d files, %d fingerprints; want 2, 1", len(snap.Files), len(snap.Fingerprints))
	}

	mustNoErr(t, c.ClearAll(ctx))
	result, err := database.Import(ctx, c, &buf)
	mustNoErr(t, err)
	if result.Files != 2 || result.Fingerprints != 1 {
		t.Errorf("Import() = %+v; want 2 files, 1 fingerprint", result)
	}

	f, err := c.LookupByPath(ctx, "/b.jpg")
	mustNoErr(t, err)
	if f == nil || f.Digest != Digest("a") || !f.ModTime.Equal(time.Unix(1700000000, 123456789)) {
		t.Fatalf("LookupByPath(/b.jpg) after import = %+v", f)
	}
	fp, err := c.LookupFingerprint(ctx, f.Digest, f.Size, 16)
	mustNoErr(t, err)
	if fp == nil || !fp.Equal(Fingerprint(0x5A)) {
		t.Errorf("LookupFingerprint() after import = %v", fp)
	}
}
