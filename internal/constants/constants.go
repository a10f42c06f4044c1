// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Fingerprint constants
const (
	// DefaultGridSize is the default fingerprint resolution (N for an N×N grid)
	DefaultGridSize = 64

	// MinGridSize is the smallest accepted fingerprint resolution
	MinGridSize = 1

	// MaxGridSize is the largest accepted fingerprint resolution
	MaxGridSize = 256

	// DefaultThreshold is the default maximum Hamming distance for two images
	// to be considered duplicates
	DefaultThreshold = 15
)

// Processing constants
const (
	// CleanBatchSize is the number of paths deleted per transaction during cache cleanup
	CleanBatchSize = 500
)

// Database pool constants
const (
	// DefaultMaxOpenConns is the default connection pool size for server backends
	DefaultMaxOpenConns = 25

	// DefaultMaxIdleConns is the default idle connection count for server backends
	DefaultMaxIdleConns = 5
)

// Web constants
const (
	// DefaultWebPort is the default HTTP listen port
	DefaultWebPort = 8080

	// DefaultWebHost is the default HTTP listen address
	DefaultWebHost = "0.0.0.0"

	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// MaxRequestBody is the maximum accepted JSON request body in bytes (1MB)
	MaxRequestBody = 1 << 20
)
