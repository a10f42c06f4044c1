package contentid

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		digest string
	}{
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, err := Compute(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			if id.Digest.String() != tc.digest {
				t.Errorf("Compute(%q) digest = %s; want %s", tc.input, id.Digest, tc.digest)
			}
			if id.Size != int64(len(tc.input)) {
				t.Errorf("Compute(%q) size = %d; want %d", tc.input, id.Size, len(tc.input))
			}
		})
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	if err := os.WriteFile(a, []byte("same content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("same content"), 0o644); err != nil {
		t.Fatal(err)
	}

	idA, err := FromFile(a)
	if err != nil {
		t.Fatalf("FromFile(a) error = %v", err)
	}
	idB, err := FromFile(b)
	if err != nil {
		t.Fatalf("FromFile(b) error = %v", err)
	}
	if idA != idB {
		t.Errorf("identical files produced different identities: %v vs %v", idA, idB)
	}

	if err := os.WriteFile(b, []byte("same content!"), 0o644); err != nil {
		t.Fatal(err)
	}
	idB2, err := FromFile(b)
	if err != nil {
		t.Fatalf("FromFile(b) error = %v", err)
	}
	if idB2 == idA {
		t.Error("modified file kept the old identity")
	}
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.jpg"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("FromFile(missing) error = %v; want ErrIO", err)
	}
}

func TestParseDigest(t *testing.T) {
	id, _ := Compute(strings.NewReader("abc"))
	d, err := ParseDigest(id.Digest.String())
	if err != nil {
		t.Fatalf("ParseDigest() error = %v", err)
	}
	if d != id.Digest {
		t.Errorf("ParseDigest() = %s; want %s", d, id.Digest)
	}

	if _, err := ParseDigest("abcd"); err == nil {
		t.Error("ParseDigest(short) expected error")
	}
	if _, err := ParseDigest("zz"); err == nil {
		t.Error("ParseDigest(non-hex) expected error")
	}
	if _, err := DigestFromBytes([]byte{1, 2}); err == nil {
		t.Error("DigestFromBytes(short) expected error")
	}
}

func TestDigestText(t *testing.T) {
	id, _ := Compute(strings.NewReader("hello"))
	text, err := id.Digest.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var d Digest
	if err := d.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d != id.Digest {
		t.Errorf("UnmarshalText(MarshalText()) = %s; want %s", d, id.Digest)
	}
	if d.IsZero() {
		t.Error("IsZero() = true for a computed digest")
	}
}
