package xmssmt

import (
	"bytes"
	"math/rand"
	"testing"
)

// deterministicEntropy returns a randombytes callback that draws from a
// seeded PRNG, so two separate keygens given the same seed produce
// byte-identical key material (used to compare signatures across
// different bds_k settings in TestBdsKDoesNotAffectSignatureBytes).
func deterministicEntropy(seed int64) func([]byte) int {
	r := rand.New(rand.NewSource(seed))
	return func(buf []byte) int {
		if _, err := r.Read(buf); err != nil {
			return 1
		}
		return 0
	}
}

func mustContext(t *testing.T, name string) *Context {
	t.Helper()
	ctx, err := NewContextFromName(name)
	if err != nil {
		t.Fatalf("NewContextFromName(%q): %v", name, err)
	}
	return ctx
}

// TestRoundtrip covers spec.md §8 property 1: keygen, sign, verify
// succeeds across representative parameter sets and bds_k values, and
// any single-bit flip of sig/msg/pk causes verify to fail.
func TestRoundtrip(t *testing.T) {
	names := []string{
		"XMSS-SHA2_10_256",
		"XMSS-SHAKE_10_256",
		"XMSS-SHA2_10_512",
		"XMSSMT-SHA2_20/2_256",
	}
	for _, name := range names {
		for _, bdsK := range []uint32{0, 2, 4} {
			ctx := mustContext(t, name)
			sk, pk, err := GenerateKeyPair(ctx, bdsK, deterministicEntropy(1))
			if err != nil {
				t.Fatalf("%s/bdsK=%d: GenerateKeyPair: %v", name, bdsK, err)
			}
			msg := []byte("the quick brown fox")
			sig, err := sk.Sign(msg)
			if err != nil {
				t.Fatalf("%s/bdsK=%d: Sign: %v", name, bdsK, err)
			}
			if err := Verify(pk, msg, sig); err != nil {
				t.Fatalf("%s/bdsK=%d: Verify: %v", name, bdsK, err)
			}

			// Flip a bit in the signature.
			sigFlipped := append([]byte(nil), sig...)
			sigFlipped[len(sigFlipped)/2] ^= 1
			if err := Verify(pk, msg, sigFlipped); err == nil {
				t.Fatalf("%s/bdsK=%d: Verify accepted a flipped signature", name, bdsK)
			}

			// Flip a bit in the message.
			msgFlipped := append([]byte(nil), msg...)
			msgFlipped[0] ^= 1
			if err := Verify(pk, msgFlipped, sig); err == nil {
				t.Fatalf("%s/bdsK=%d: Verify accepted a flipped message", name, bdsK)
			}

			// Flip a bit in the public key's root.
			pkBytes, err2 := pk.MarshalBinary()
			if err2 != nil {
				t.Fatalf("%s/bdsK=%d: MarshalBinary: %v", name, bdsK, err2)
			}
			pkBytes[4] ^= 1
			pkFlipped, perr := UnmarshalPublicKey(pkBytes)
			if perr != nil {
				t.Fatalf("%s/bdsK=%d: UnmarshalPublicKey: %v", name, bdsK, perr)
			}
			if err := Verify(pkFlipped, msg, sig); err == nil {
				t.Fatalf("%s/bdsK=%d: Verify accepted a signature under a flipped public key", name, bdsK)
			}
		}
	}
}

// TestIndexMonotonicity covers spec.md §8 property 2.
func TestIndexMonotonicity(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	sk, _, err := GenerateKeyPair(ctx, 0, deterministicEntropy(2))
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	const n = 5
	for i := 0; i < n; i++ {
		if sk.Idx() != uint64(i) {
			t.Fatalf("before sign %d: idx = %d, want %d", i, sk.Idx(), i)
		}
		if _, err := sk.Sign([]byte{byte(i)}); err != nil {
			t.Fatalf("Sign %d: %v", i, err)
		}
	}
	if sk.Idx() != n {
		t.Fatalf("after %d signs: idx = %d, want %d", n, sk.Idx(), n)
	}

	p := sk.ctx.Params()
	sk.idx = p.IdxMax() + 1
	if _, err := sk.Sign([]byte("one too many")); err == nil {
		t.Fatalf("Sign should have failed once idx > idx_max")
	} else if err.Kind() != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err.Kind())
	}
	if sk.Idx() != p.IdxMax()+1 {
		t.Fatalf("sk.idx must be unchanged after an exhausted Sign")
	}
}

// TestSequentialSigning covers spec.md §8 property 3: a contiguous run
// of 24 signatures (idx 0..23) in a height-10 tree all verify,
// exercising bdsRound for tau values 0 through 4.
func TestSequentialSigning(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	sk, pk, err := GenerateKeyPair(ctx, 0, deterministicEntropy(3))
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	for i := 0; i < 24; i++ {
		msg := []byte{0xAB, byte(i)}
		sig, err := sk.Sign(msg)
		if err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
		if err := Verify(pk, msg, sig); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
	}
}

// TestBdsKDoesNotAffectSignatureBytes covers spec.md §8 Scenario C:
// bds_k changes only the internal scheduling of the BDS engine, never
// the emitted signature bytes, given identical key material.
func TestBdsKDoesNotAffectSignatureBytes(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")

	sk0, _, err := GenerateKeyPair(ctx, 0, deterministicEntropy(99))
	if err != nil {
		t.Fatalf("GenerateKeyPair(bdsK=0): %v", err)
	}
	sk2, _, err := GenerateKeyPair(ctx, 2, deterministicEntropy(99))
	if err != nil {
		t.Fatalf("GenerateKeyPair(bdsK=2): %v", err)
	}
	sk4, _, err := GenerateKeyPair(ctx, 4, deterministicEntropy(99))
	if err != nil {
		t.Fatalf("GenerateKeyPair(bdsK=4): %v", err)
	}

	for i := 0; i < 20; i++ {
		msg := []byte{0xAB, byte(i)}
		sig0, err := sk0.Sign(msg)
		if err != nil {
			t.Fatalf("sign(bdsK=0) %d: %v", i, err)
		}
		sig2, err := sk2.Sign(msg)
		if err != nil {
			t.Fatalf("sign(bdsK=2) %d: %v", i, err)
		}
		sig4, err := sk4.Sign(msg)
		if err != nil {
			t.Fatalf("sign(bdsK=4) %d: %v", i, err)
		}
		if !bytes.Equal(sig0, sig2) || !bytes.Equal(sig0, sig4) {
			t.Fatalf("signature %d differs across bds_k values", i)
		}
	}
}

// TestCrossKeyRejection covers spec.md §8 property 5.
func TestCrossKeyRejection(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	skA, _, err := GenerateKeyPair(ctx, 0, deterministicEntropy(11))
	if err != nil {
		t.Fatalf("GenerateKeyPair A: %v", err)
	}
	_, pkB, err := GenerateKeyPair(ctx, 0, deterministicEntropy(12))
	if err != nil {
		t.Fatalf("GenerateKeyPair B: %v", err)
	}

	msg := []byte("cross key test")
	sig, err := skA.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify(pkB, msg, sig); err == nil {
		t.Fatalf("signature made with key A verified under key B's public key")
	}
}

// TestEmptyAndLargeMessages covers spec.md §8 Scenario D.
func TestEmptyAndLargeMessages(t *testing.T) {
	for _, name := range []string{"XMSS-SHA2_10_256", "XMSS-SHAKE_10_256"} {
		ctx := mustContext(t, name)
		sk, pk, err := GenerateKeyPair(ctx, 0, deterministicEntropy(21))
		if err != nil {
			t.Fatalf("%s: GenerateKeyPair: %v", name, err)
		}

		sig, err := sk.Sign(nil)
		if err != nil {
			t.Fatalf("%s: Sign(empty): %v", name, err)
		}
		if err := Verify(pk, nil, sig); err != nil {
			t.Fatalf("%s: Verify(empty): %v", name, err)
		}

		big := make([]byte, 64)
		for i := range big {
			big[i] = byte(i)
		}
		sig, err = sk.Sign(big)
		if err != nil {
			t.Fatalf("%s: Sign(64B): %v", name, err)
		}
		if err := Verify(pk, big, sig); err != nil {
			t.Fatalf("%s: Verify(64B): %v", name, err)
		}
	}
}

// TestPrivateKeyMarshalRoundtrip exercises UnmarshalPrivateKey/State/
// SetState, the persistence primitives the keystore package is built
// on: after marshalling and restoring both the key and its BDS state,
// signing continues to produce verifiable signatures.
func TestPrivateKeyMarshalRoundtrip(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	sk, pk, err := GenerateKeyPair(ctx, 2, deterministicEntropy(77))
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	if _, err := sk.Sign([]byte("warm up")); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	skBytes, mErr := sk.MarshalBinary()
	if mErr != nil {
		t.Fatalf("MarshalBinary: %v", mErr)
	}
	state := sk.State()

	restored, rErr := UnmarshalPrivateKey(skBytes, sk.BdsK())
	if rErr != nil {
		t.Fatalf("UnmarshalPrivateKey: %v", rErr)
	}
	if sErr := restored.SetState(state); sErr != nil {
		t.Fatalf("SetState: %v", sErr)
	}
	if restored.Idx() != sk.Idx() {
		t.Fatalf("restored idx = %d, want %d", restored.Idx(), sk.Idx())
	}

	msg := []byte("after restore")
	sig, err := restored.Sign(msg)
	if err != nil {
		t.Fatalf("Sign on restored key: %v", err)
	}
	if err := Verify(pk, msg, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
