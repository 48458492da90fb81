package xmssmt

import (
	"bytes"
	"testing"
)

func testSeeds(n int) (skSeed, pubSeed []byte) {
	skSeed = make([]byte, n)
	pubSeed = make([]byte, n)
	for i := 0; i < n; i++ {
		skSeed[i] = byte(i)
		pubSeed[i] = byte(255 - i)
	}
	return
}

// TestWotsPkFromSigRecoversPk checks the core WOTS+ correctness
// property of spec.md §4.2: chaining a valid signature up to w-1 steps
// recovers exactly the public key wotsPkGen produced.
func TestWotsPkFromSigRecoversPk(t *testing.T) {
	for _, name := range []string{"XMSS-SHA2_10_256", "XMSS-SHAKE_10_512"} {
		ctx := mustContext(t, name)
		n := int(ctx.p.N)
		skSeed, pubSeed := testSeeds(n)
		pad := ctx.newScratchPad()

		var addr address
		addr.setLayer(0)
		addr.setTree(0)
		addr.setType(ADDR_TYPE_OTS)
		addr.setOTS(3)

		pk := ctx.wotsPkGen(pad, skSeed, pubSeed, addr)

		msg := make([]byte, n)
		for i := range msg {
			msg[i] = byte(i * 7)
		}
		sig := ctx.wotsSign(pad, msg, skSeed, pubSeed, addr)
		recovered := ctx.wotsPkFromSig(pad, sig, msg, pubSeed, addr)

		if !bytes.Equal(pk, recovered) {
			t.Fatalf("%s: recovered public key does not match wotsPkGen's", name)
		}
	}
}

// TestWotsChainLengthsChecksum exercises base_w decomposition and the
// checksum append of spec.md §4.2 against a hand-computed example.
func TestWotsChainLengthsChecksum(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	pad := ctx.newScratchPad()
	msg := make([]byte, 32)
	lengths := ctx.wotsChainLengths(pad, msg)
	if len(lengths) != int(ctx.p.WotsLen()) {
		t.Fatalf("expected %d digits, got %d", ctx.p.WotsLen(), len(lengths))
	}
	// An all-zero message digit stream has checksum len1*(w-1), the
	// maximum possible value, since every digit is 0.
	var csum uint32
	for i := uint32(0); i < ctx.p.WotsLen1(); i++ {
		if lengths[i] != 0 {
			t.Fatalf("digit %d of all-zero message should be 0, got %d", i, lengths[i])
		}
		csum += uint32(ctx.p.WotsW) - 1
	}
	if csum != ctx.p.WotsLen1()*(uint32(ctx.p.WotsW)-1) {
		t.Fatalf("unexpected checksum accumulator")
	}
	// By hand: csum = 64*15 = 960 = 0x3C0, shifted left by 4 to 0x3C00,
	// whose first three base-16 digits are 3, 12, 0.
	wantCsum := []uint8{3, 12, 0}
	for i, want := range wantCsum {
		if got := lengths[ctx.p.WotsLen1()+uint32(i)]; got != want {
			t.Fatalf("checksum digit %d = %d, want %d", i, got, want)
		}
	}
}

// TestWotsSignIsDeterministic checks that signing the same message
// twice under identical seeds/address produces the same signature
// (WOTS+ keygen/sign have no internal randomness, per spec.md §4.2).
func TestWotsSignIsDeterministic(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	n := int(ctx.p.N)
	skSeed, pubSeed := testSeeds(n)
	pad := ctx.newScratchPad()

	var addr address
	addr.setType(ADDR_TYPE_OTS)
	addr.setOTS(1)

	msg := make([]byte, n)
	sig1 := ctx.wotsSign(pad, msg, skSeed, pubSeed, addr)
	sig2 := ctx.wotsSign(pad, msg, skSeed, pubSeed, addr)
	if !bytes.Equal(sig1, sig2) {
		t.Fatalf("wotsSign is not deterministic")
	}
}
