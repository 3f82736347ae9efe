package digest

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/blake2b"
)

func TestFileMatchesSum256(t *testing.T) {
	data := []byte("%PDF-1.4 sample")
	p := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := File(p)
	if err != nil {
		t.Fatal(err)
	}
	sum := blake2b.Sum256(data)
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("digest = %s, want %s", got, want)
	}
}

func TestReaderDistinguishesContent(t *testing.T) {
	a, _ := Reader(strings.NewReader("deck-a"))
	b, _ := Reader(strings.NewReader("deck-b"))
	if a == b {
		t.Fatal("different content must not share a digest")
	}
	if len(a) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(a))
	}
}
