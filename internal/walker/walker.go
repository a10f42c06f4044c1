// Package walker discovers image files under a set of roots.
package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Extensions lists the lowercase file extensions treated as images.
var Extensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp"}

// Options controls which files Walk returns.
type Options struct {
	IncludeHidden  bool     // descend into directories starting with "."
	SkipValidation bool     // trust extensions without checking magic numbers
	IgnorePrefixes []string // absolute path prefixes to skip, "~" is expanded
	Logger         *slog.Logger
}

// Walk returns the sorted, deduplicated absolute paths of image files found
// in roots. A root may be a file or a directory. Unreadable entries are
// logged and skipped; a root that does not exist is an error.
func Walk(ctx context.Context, roots []string, opts Options) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ignore := expandPrefixes(opts.IgnorePrefixes)

	seen := make(map[string]struct{})
	var found []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		found = append(found, path)
	}

	for _, root := range roots {
		abs, err := filepath.Abs(ExpandHome(root))
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", root, err)
		}
		if ignored(abs, ignore) {
			logger.Debug("skipping ignored root", "path", abs)
			continue
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", root, err)
		}
		if !info.IsDir() {
			if accept(abs, info, opts.SkipValidation, logger) {
				add(abs)
			}
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				logger.Warn("could not access entry", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if path != abs && ignored(path, ignore) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != abs && !opts.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}

			// Symlinks are followed for files only, so directory cycles are impossible.
			info, err := os.Stat(path)
			if err != nil {
				logger.Warn("skipping inaccessible file", "path", path, "error", err)
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if accept(path, info, opts.SkipValidation, logger) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	slices.Sort(found)
	return found, nil
}

func accept(path string, info fs.FileInfo, skipValidation bool, logger *slog.Logger) bool {
	if !info.Mode().IsRegular() || !HasImageExtension(path) {
		return false
	}
	if skipValidation {
		return true
	}
	ok, err := ValidateFormat(path)
	if err != nil {
		logger.Warn("could not validate file", "path", path, "error", err)
		return false
	}
	if !ok {
		logger.Debug("file content does not match its extension", "path", path)
	}
	return ok
}

// HasImageExtension reports whether path ends in one of Extensions.
func HasImageExtension(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return slices.Contains(Extensions, ext)
}

// ValidateFormat checks that the file's leading bytes match its extension.
// Extensions without a known signature are accepted.
func ValidateFormat(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 16)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	if n < 4 {
		return false, nil
	}
	return matchesSignature(strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")), header[:n]), nil
}

func matchesSignature(ext string, header []byte) bool {
	switch ext {
	case "png":
		return bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'})
	case "jpg", "jpeg":
		return bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF})
	case "gif":
		return bytes.HasPrefix(header, []byte("GIF87a")) || bytes.HasPrefix(header, []byte("GIF89a"))
	case "webp":
		return len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP"))
	case "bmp":
		return bytes.HasPrefix(header, []byte("BM"))
	case "tiff", "tif":
		return bytes.HasPrefix(header, []byte{'M', 'M', 0x00, 0x2A}) || bytes.HasPrefix(header, []byte{'I', 'I', 0x2A, 0x00})
	default:
		return true
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func expandPrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(ExpandHome(p)))
	}
	return out
}

// ignored matches whole path components, so /photos/raw does not hide /photos/raw2.
func ignored(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
