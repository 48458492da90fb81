package xmssmt

import (
	"bytes"
	"testing"
)

// TestHashFacadeDomainSeparation checks that F and H produce distinct
// outputs from the same key material thanks to the distinct padding
// bytes of spec.md §4.1, and that F is deterministic.
func TestHashFacadeDomainSeparation(t *testing.T) {
	for _, name := range []string{"XMSS-SHA2_10_256", "XMSS-SHAKE_10_256", "XMSS-SHA2_10_512"} {
		ctx := mustContext(t, name)
		n := int(ctx.p.N)
		key := make([]byte, n)
		for i := range key {
			key[i] = byte(i)
		}
		in := make([]byte, n)
		for i := range in {
			in[i] = byte(255 - i)
		}
		pad := ctx.newScratchPad()

		var addr address
		addr.setType(ADDR_TYPE_HASHTREE)

		fOut := make([]byte, n)
		ctx.f(pad, key, addr, in, fOut)

		hOut := make([]byte, n)
		ctx.h(pad, key, addr, in, in, hOut)

		if bytes.Equal(fOut, hOut) {
			t.Fatalf("%s: F and H produced the same output", name)
		}

		fOut2 := make([]byte, n)
		ctx.f(pad, key, addr, in, fOut2)
		if !bytes.Equal(fOut, fOut2) {
			t.Fatalf("%s: F is not deterministic", name)
		}
	}
}

// TestHMsgStreamsArbitraryLengthMessages checks that H_msg accepts
// both an empty reader and a long one without truncation (spec.md
// §4.1: "msg is variable length; implementation uses the primitive's
// streaming interface").
func TestHMsgStreamsArbitraryLengthMessages(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	n := int(ctx.p.N)
	pad := ctx.newScratchPad()
	r := make([]byte, n)
	root := make([]byte, n)

	var out1, out2 [32]byte
	if err := ctx.hMsg(pad, r, root, 0, bytes.NewReader(nil), out1[:]); err != nil {
		t.Fatalf("hMsg(empty): %v", err)
	}

	long := make([]byte, 10000)
	if err := ctx.hMsg(pad, r, root, 0, bytes.NewReader(long), out2[:]); err != nil {
		t.Fatalf("hMsg(long): %v", err)
	}

	if bytes.Equal(out1[:], out2[:]) {
		t.Fatalf("hMsg gave the same digest for different-length messages")
	}
}
