package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// Snapshot is the portable form of a whole cache
type Snapshot struct {
	Version      int                 `json:"version"`
	ExportedAt   time.Time           `json:"exported_at"`
	Files        []StoredFile        `json:"files"`
	Fingerprints []StoredFingerprint `json:"fingerprints"`
}

// ImportResult reports how many rows an import offered to the cache
type ImportResult struct {
	Files        int `json:"files"`
	Fingerprints int `json:"fingerprints"`
}

// Export writes a zstd-compressed JSON snapshot of the cache to w.
func Export(ctx context.Context, c CacheReader, w io.Writer) (*Snapshot, error) {
	files, err := c.AllFiles(ctx)
	if err != nil {
		return nil, err
	}
	fps, err := c.AllFingerprints(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Version:      SnapshotVersion,
		ExportedAt:   time.Now().UTC(),
		Files:        files,
		Fingerprints: fps,
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flushing snapshot: %w", err)
	}
	return snap, nil
}

// ReadSnapshot decodes and validates a snapshot written by Export.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	var snap Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	for i, fp := range snap.Fingerprints {
		valid, err := fingerprint.FromBytes(fp.Fingerprint.Resolution, fp.Fingerprint.Bits)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %d (%s): %w", i, fp.Digest, err)
		}
		snap.Fingerprints[i].Fingerprint = valid
	}
	return &snap, nil
}

// Import loads a snapshot into the cache. Existing fingerprints are kept and
// file records are overwritten, so importing twice is harmless.
func Import(ctx context.Context, c CacheWriter, r io.Reader) (*ImportResult, error) {
	snap, err := ReadSnapshot(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, fp := range snap.Fingerprints {
		if err := c.UpsertFingerprint(ctx, fp); err != nil {
			return result, err
		}
		result.Fingerprints++
	}
	for _, f := range snap.Files {
		if err := c.UpsertFile(ctx, f); err != nil {
			return result, err
		}
		result.Files++
	}
	return result, nil
}
