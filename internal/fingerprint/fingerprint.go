// Package fingerprint computes rotation-invariant average hashes of images.
//
// An image is resampled to an N×N grid of luma samples and every cell is
// compared with the grid mean. The grid is evaluated in all four 90° rotations
// and the lexicographically smallest bit string is kept, so an image and its
// rotated copies share one fingerprint.
package fingerprint

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"math/bits"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxResolution is the largest supported grid size.
const MaxResolution = 256

var (
	// ErrDecode is returned for corrupt or truncated image data.
	ErrDecode = errors.New("decode error")
	// ErrUnsupportedFormat is returned when no registered decoder recognizes the data.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrResolution is returned for a grid size outside 1..MaxResolution.
	ErrResolution = errors.New("invalid resolution")
	// ErrLengthMismatch is returned when comparing fingerprints of different resolutions.
	ErrLengthMismatch = errors.New("fingerprint length mismatch")
)

// Fingerprint is a canonical N*N bit vector packed MSB-first in row-major order.
// Trailing padding bits of the last byte are always zero, so byte order equals
// numeric order of the bit vector.
type Fingerprint struct {
	Resolution int    `json:"resolution"`
	Bits       []byte `json:"bits"`
}

// ByteLen returns the packed size of a fingerprint at the given resolution.
func ByteLen(resolution int) int {
	return (resolution*resolution + 7) / 8
}

// FromBytes validates packed bits read back from storage.
func FromBytes(resolution int, b []byte) (Fingerprint, error) {
	if resolution < 1 || resolution > MaxResolution {
		return Fingerprint{}, fmt.Errorf("%w: %d", ErrResolution, resolution)
	}
	if len(b) != ByteLen(resolution) {
		return Fingerprint{}, fmt.Errorf("%w: %d bytes for resolution %d", ErrLengthMismatch, len(b), resolution)
	}
	if pad := len(b)*8 - resolution*resolution; pad > 0 && b[len(b)-1]&(1<<pad-1) != 0 {
		return Fingerprint{}, fmt.Errorf("non-zero padding bits for resolution %d", resolution)
	}
	return Fingerprint{Resolution: resolution, Bits: bytes.Clone(b)}, nil
}

// Parse decodes a hex fingerprint as produced by String.
func Parse(resolution int, s string) (Fingerprint, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("decoding fingerprint: %w", err)
	}
	return FromBytes(resolution, b)
}

// String returns the bits as lowercase hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f.Bits)
}

// Len returns the number of meaningful bits.
func (f Fingerprint) Len() int {
	return f.Resolution * f.Resolution
}

// Bit reports whether bit i (row-major) is set.
func (f Fingerprint) Bit(i int) bool {
	return f.Bits[i/8]&(0x80>>(i%8)) != 0
}

// Equal reports whether both fingerprints have the same resolution and bits.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Resolution == other.Resolution && bytes.Equal(f.Bits, other.Bits)
}

// Distance returns the Hamming distance between two fingerprints of the same resolution.
func (f Fingerprint) Distance(other Fingerprint) (int, error) {
	if f.Resolution != other.Resolution || len(f.Bits) != len(other.Bits) {
		return 0, fmt.Errorf("%w: resolution %d vs %d", ErrLengthMismatch, f.Resolution, other.Resolution)
	}
	return HammingDistance(f.Bits, other.Bits), nil
}

// HammingDistance counts differing bits of two equally sized bit strings.
func HammingDistance(a, b []byte) int {
	distance := 0
	for len(a) >= 8 {
		distance += bits.OnesCount64(binary.BigEndian.Uint64(a) ^ binary.BigEndian.Uint64(b))
		a, b = a[8:], b[8:]
	}
	for i := range a {
		distance += bits.OnesCount8(a[i] ^ b[i])
	}
	return distance
}

// Decode decodes an image, applying EXIF orientation when present.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// FromReader decodes an image and computes its fingerprint.
func FromReader(r io.Reader, resolution int) (Fingerprint, error) {
	img, err := Decode(r)
	if err != nil {
		return Fingerprint{}, err
	}
	return Compute(img, resolution)
}

// Compute returns the canonical fingerprint of a decoded image.
func Compute(img image.Image, resolution int) (Fingerprint, error) {
	if resolution < 1 || resolution > MaxResolution {
		return Fingerprint{}, fmt.Errorf("%w: %d", ErrResolution, resolution)
	}
	if img.Bounds().Empty() {
		return Fingerprint{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	grid := lumaGrid(resizeImage(img, resolution, resolution))
	canon, _ := canonical(grid, resolution)
	return Fingerprint{Resolution: resolution, Bits: canon}, nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// lumaGrid converts an RGBA image to row-major 8-bit luma using BT.601 weights
// in 16.16 fixed point.
func lumaGrid(img *image.RGBA) []uint32 {
	b := img.Bounds()
	grid := make([]uint32, 0, b.Dx()*b.Dy())
	for y := range b.Dy() {
		row := img.Pix[y*img.Stride:]
		for x := range b.Dx() {
			r, g, bl := uint32(row[x*4]), uint32(row[x*4+1]), uint32(row[x*4+2])
			grid = append(grid, (19595*r+38470*g+7471*bl+1<<15)>>16)
		}
	}
	return grid
}

// canonical returns the smallest thresholded bit string over the four
// clockwise rotations of grid, and the rotation index (0-3) it came from.
// On a tie the lower index wins.
func canonical(grid []uint32, n int) ([]byte, int) {
	best := threshold(grid, n)
	bestRot := 0
	g := grid
	for rot := 1; rot < 4; rot++ {
		g = rotate(g, n)
		cand := threshold(g, n)
		if bytes.Compare(cand, best) < 0 {
			best, bestRot = cand, rot
		}
	}
	return best, bestRot
}

// rotate returns the n×n grid turned 90° clockwise.
func rotate(grid []uint32, n int) []uint32 {
	out := make([]uint32, len(grid))
	for y := range n {
		for x := range n {
			out[y*n+x] = grid[(n-1-x)*n+y]
		}
	}
	return out
}

// threshold packs one bit per cell: set when the cell is at or above the mean.
// The comparison v >= sum/cells is done as v*cells >= sum to stay exact.
func threshold(grid []uint32, n int) []byte {
	var sum uint64
	for _, v := range grid {
		sum += uint64(v)
	}
	cells := uint64(n * n)
	out := make([]byte, ByteLen(n))
	for i, v := range grid {
		if uint64(v)*cells >= sum {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}
