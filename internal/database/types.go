package database

import (
	"time"

	"github.com/kozaktomas/photo-dedup/internal/contentid"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// StoredFile maps a file path to the identity of its content
type StoredFile struct {
	Path    string           `json:"path"`
	Size    int64            `json:"size"`
	ModTime time.Time        `json:"mtime"`
	Digest  contentid.Digest `json:"digest"`
}

// Identity returns the content identity the record points to.
func (f StoredFile) Identity() contentid.Identity {
	return contentid.Identity{Digest: f.Digest, Size: f.Size}
}

// StoredFingerprint is an immutable fingerprint keyed by content identity and resolution
type StoredFingerprint struct {
	Digest      contentid.Digest        `json:"digest"`
	Size        int64                   `json:"size"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time               `json:"created_at"`
}

// CachedEntry is a file path with the fingerprint of its current content
type CachedEntry struct {
	Path        string
	Fingerprint fingerprint.Fingerprint
}

// Stats summarizes cache contents
type Stats struct {
	Files          int64         `json:"files"`
	Fingerprints   int64         `json:"fingerprints"`
	UniqueContents int64         `json:"unique_contents"`
	ByResolution   map[int]int64 `json:"by_resolution"`
	DedupRatio     float64       `json:"dedup_ratio"` // files per unique content
}

// ComputeDedupRatio fills DedupRatio from Files and UniqueContents.
func (s *Stats) ComputeDedupRatio() {
	if s.UniqueContents == 0 {
		s.DedupRatio = 0
		return
	}
	s.DedupRatio = float64(s.Files) / float64(s.UniqueContents)
}
