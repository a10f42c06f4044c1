package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect holds the statements that differ between SQL engines. Queries in
// this package are written with ? placeholders and rebound per dialect.
type Dialect struct {
	Name string

	// DollarPlaceholders rewrites ? as $1, $2, ... (PostgreSQL)
	DollarPlaceholders bool

	// InsertFingerprint inserts a fingerprint row and ignores key conflicts.
	// Arguments: digest, size, resolution, bits, created_at.
	InsertFingerprint string

	// UpsertFile inserts or replaces a file row.
	// Arguments: path, size, mtime_ns, digest.
	UpsertFile string

	// SerializeWrites guards every write with a process-wide mutex. Needed for
	// engines with a single writer lock.
	SerializeWrites bool
}

// SQLite dialect
var SQLite = Dialect{
	Name: "sqlite",
	InsertFingerprint: `INSERT OR IGNORE INTO fingerprints (digest, size, resolution, bits, created_at)
		VALUES (?, ?, ?, ?, ?)`,
	UpsertFile: `INSERT INTO files (path, size, mtime_ns, digest) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size = excluded.size, mtime_ns = excluded.mtime_ns, digest = excluded.digest`,
	SerializeWrites: true,
}

// Postgres dialect
var Postgres = Dialect{
	Name:               "postgres",
	DollarPlaceholders: true,
	InsertFingerprint: `INSERT INTO fingerprints (digest, size, resolution, bits, created_at)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
	UpsertFile: `INSERT INTO files (path, size, mtime_ns, digest) VALUES (?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET size = EXCLUDED.size, mtime_ns = EXCLUDED.mtime_ns, digest = EXCLUDED.digest`,
}

// MySQL dialect, used for MariaDB
var MySQL = Dialect{
	Name: "mysql",
	InsertFingerprint: `INSERT IGNORE INTO fingerprints (digest, size, resolution, bits, created_at)
		VALUES (?, ?, ?, ?, ?)`,
	UpsertFile: `INSERT INTO files (path, size, mtime_ns, digest) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE size = VALUES(size), mtime_ns = VALUES(mtime_ns), digest = VALUES(digest)`,
}

// Rebind converts ? placeholders to the dialect's style.
func (d Dialect) Rebind(query string) string {
	if !d.DollarPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
