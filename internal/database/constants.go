package database

// Snapshot format constants
const (
	// SnapshotVersion is bumped whenever the export layout changes incompatibly
	SnapshotVersion = 1

	// SnapshotExtension is the conventional file extension for exports
	SnapshotExtension = ".json.zst"
)
