package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0, 0, 0}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}
	webpHeader = []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B', 'P', 'V', 'P', '8', ' '}
)

func writeFile(t *testing.T, path string, content []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// buildTree creates a small photo library and returns its root.
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"), pngHeader)
	writeFile(t, filepath.Join(root, "b.JPG"), jpegHeader)
	writeFile(t, filepath.Join(root, "sub", "c.webp"), webpHeader)
	writeFile(t, filepath.Join(root, "sub", "notes.txt"), []byte("not an image"))
	writeFile(t, filepath.Join(root, "fake.png"), jpegHeader)
	writeFile(t, filepath.Join(root, ".thumbs", "d.png"), pngHeader)
	writeFile(t, filepath.Join(root, "raw", "e.png"), pngHeader)
	writeFile(t, filepath.Join(root, "raw2", "f.png"), pngHeader)
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatalf("Rel(%s) error = %v", p, err)
		}
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestWalk(t *testing.T) {
	root := buildTree(t)

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults",
			want: []string{"a.png", "b.JPG", "raw/e.png", "raw2/f.png", "sub/c.webp"},
		},
		{
			name: "include hidden",
			opts: Options{IncludeHidden: true},
			want: []string{".thumbs/d.png", "a.png", "b.JPG", "raw/e.png", "raw2/f.png", "sub/c.webp"},
		},
		{
			name: "skip validation keeps mislabelled file",
			opts: Options{SkipValidation: true},
			want: []string{"a.png", "b.JPG", "fake.png", "raw/e.png", "raw2/f.png", "sub/c.webp"},
		},
		{
			name: "ignore prefix matches whole components",
			opts: Options{IgnorePrefixes: []string{filepath.Join(root, "raw")}},
			want: []string{"a.png", "b.JPG", "raw2/f.png", "sub/c.webp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Walk(context.Background(), []string{root}, tt.opts)
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if r := rel(t, root, got); !slices.Equal(r, tt.want) {
				t.Errorf("Walk() = %v, want %v", r, tt.want)
			}
		})
	}
}

func TestWalk_DeduplicatesOverlappingRoots(t *testing.T) {
	root := buildTree(t)
	roots := []string{
		filepath.Join(root, "sub"),
		root,
		filepath.Join(root, "a.png"),
		filepath.Join(root, "sub", "..", "a.png"),
	}

	got, err := Walk(context.Background(), roots, Options{})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{"a.png", "b.JPG", "raw/e.png", "raw2/f.png", "sub/c.webp"}
	if r := rel(t, root, got); !slices.Equal(r, want) {
		t.Errorf("Walk() = %v, want %v", r, want)
	}
	for _, p := range got {
		if !filepath.IsAbs(p) {
			t.Errorf("path %q is not absolute", p)
		}
	}
}

func TestWalk_FileRootIgnoresHiddenRule(t *testing.T) {
	root := buildTree(t)
	hidden := filepath.Join(root, ".thumbs")

	got, err := Walk(context.Background(), []string{hidden}, Options{})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "d.png" {
		t.Errorf("Walk() = %v, want the hidden root's image", got)
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Walk() error = %v, want ErrNotExist", err)
	}
}

func TestWalk_Cancelled(t *testing.T) {
	root := buildTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Walk(ctx, []string{root}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Walk() error = %v, want context.Canceled", err)
	}
}

func TestWalk_SymlinkedFile(t *testing.T) {
	root := buildTree(t)
	link := filepath.Join(root, "sub", "link.png")
	if err := os.Symlink(filepath.Join(root, "a.png"), link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	got, err := Walk(context.Background(), []string{filepath.Join(root, "sub")}, Options{})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{"sub/c.webp", "sub/link.png"}
	if r := rel(t, root, got); !slices.Equal(r, want) {
		t.Errorf("Walk() = %v, want %v", r, want)
	}
}

func TestValidateFormat(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content []byte
		want    bool
	}{
		{"png", "x.png", pngHeader, true},
		{"jpeg", "x.jpeg", jpegHeader, true},
		{"gif89a", "x.gif", []byte("GIF89a\x01\x00"), true},
		{"gif wrong", "y.gif", []byte("GIF00a\x01\x00"), false},
		{"webp", "x.webp", webpHeader, true},
		{"riff not webp", "y.webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), false},
		{"bmp", "x.bmp", []byte("BM\x00\x00\x00\x00"), true},
		{"tiff little endian", "x.tif", []byte{'I', 'I', 0x2A, 0x00, 8, 0, 0, 0}, true},
		{"tiff big endian", "x.tiff", []byte{'M', 'M', 0x00, 0x2A, 0, 0, 0, 8}, true},
		{"png with jpeg bytes", "z.png", jpegHeader, false},
		{"too short", "short.png", []byte{0x89, 'P'}, false},
		{"empty", "empty.jpg", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, filepath.Join(dir, tt.file), tt.content)
			got, err := ValidateFormat(path)
			if err != nil {
				t.Fatalf("ValidateFormat() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidateFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasImageExtension(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b.jpg", true},
		{"/a/b.JPEG", true},
		{"/a/b.Tif", true},
		{"/a/b.heic", false},
		{"/a/b", false},
		{"/a/.png", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := HasImageExtension(tt.path); got != tt.want {
				t.Errorf("HasImageExtension(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/Pictures", filepath.Join(home, "Pictures")},
		{"/abs/path", "/abs/path"},
		{"~user/x", "~user/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandHome(tt.in); got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
