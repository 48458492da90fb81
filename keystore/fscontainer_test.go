package keystore

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/krontab/xmssmt"
)

func deterministicEntropy(seed int64) func([]byte) int {
	r := rand.New(rand.NewSource(seed))
	return func(buf []byte) int {
		if _, err := r.Read(buf); err != nil {
			return 1
		}
		return 0
	}
}

// TestCreateSignOpenSign checks that a key created and signed with
// once, closed, and reopened (simulating a process restart) continues
// to produce verifiable signatures with a correctly advanced index --
// the scenario the fsync-then-rename persist-before-emit discipline
// of spec.md §5 exists to make safe.
func TestCreateSignOpenSign(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")

	ctx, err := xmssmt.NewContextFromName("XMSS-SHA2_10_256")
	if err != nil {
		t.Fatalf("NewContextFromName: %v", err)
	}

	ks, pk, cErr := Create(keyPath, ctx, 2, deterministicEntropy(1))
	if cErr != nil {
		t.Fatalf("Create: %v", cErr)
	}

	msg1 := []byte("first message")
	sig1, sErr := ks.Sign(msg1)
	if sErr != nil {
		t.Fatalf("Sign: %v", sErr)
	}
	if err := xmssmt.Verify(pk, msg1, sig1); err != nil {
		t.Fatalf("Verify(first): %v", err)
	}
	if ks.PrivateKey().Idx() != 1 {
		t.Fatalf("idx after first sign = %d, want 1", ks.PrivateKey().Idx())
	}
	if err := ks.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ks2, oErr := Open(keyPath)
	if oErr != nil {
		t.Fatalf("Open: %v", oErr)
	}
	defer ks2.Close()

	if ks2.PrivateKey().Idx() != 1 {
		t.Fatalf("idx after reopen = %d, want 1", ks2.PrivateKey().Idx())
	}

	msg2 := []byte("second message")
	sig2, sErr := ks2.Sign(msg2)
	if sErr != nil {
		t.Fatalf("Sign after reopen: %v", sErr)
	}
	if err := xmssmt.Verify(pk, msg2, sig2); err != nil {
		t.Fatalf("Verify(second): %v", err)
	}
	if bytes.Equal(sig1, sig2) {
		t.Fatalf("two different messages produced identical signatures")
	}
}

// TestOpenRejectsConcurrentLock checks that a second Open on the same
// key path, while the first is still held, fails rather than racing
// the in-process signer (spec.md §5's single-owner model, enforced
// across processes by the lockfile).
func TestOpenRejectsConcurrentLock(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")

	ctx, err := xmssmt.NewContextFromName("XMSS-SHA2_10_256")
	if err != nil {
		t.Fatalf("NewContextFromName: %v", err)
	}
	ks, _, cErr := Create(keyPath, ctx, 0, deterministicEntropy(2))
	if cErr != nil {
		t.Fatalf("Create: %v", cErr)
	}
	defer ks.Close()

	if _, err := Open(keyPath); err == nil {
		t.Fatalf("second Open should have failed to acquire the lock")
	}
}
