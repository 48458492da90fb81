package xmssmt

import (
	"bytes"
	"testing"
)

// TestLTreeSingleElement checks the degenerate case: an L-tree over a
// single WOTS+ public-key element is that element itself (the
// length-1 loop exit of spec.md §4.3).
func TestLTreeSingleElement(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	n := int(ctx.p.N)
	_, pubSeed := testSeeds(n)
	pad := ctx.newScratchPad()

	var addr address
	addr.setType(ADDR_TYPE_LTREE)

	pk := make([]byte, n)
	for i := range pk {
		pk[i] = byte(i + 1)
	}
	orig := append([]byte(nil), pk...)

	leaf := ctx.lTree(pad, pk, pubSeed, addr)
	if !bytes.Equal(leaf, orig) {
		t.Fatalf("L-tree over a single element must return that element unchanged")
	}
}

// TestGenLeafIsDeterministic checks that computing the same leaf twice
// under identical seeds/address/index gives the same result.
func TestGenLeafIsDeterministic(t *testing.T) {
	ctx := mustContext(t, "XMSS-SHA2_10_256")
	n := int(ctx.p.N)
	skSeed, pubSeed := testSeeds(n)
	pad := ctx.newScratchPad()

	var addr address
	addr.setLayer(0)
	addr.setTree(0)

	leaf1 := ctx.genLeaf(pad, skSeed, pubSeed, addr, 5)
	leaf2 := ctx.genLeaf(pad, skSeed, pubSeed, addr, 5)
	if !bytes.Equal(leaf1, leaf2) {
		t.Fatalf("genLeaf is not deterministic")
	}

	leaf3 := ctx.genLeaf(pad, skSeed, pubSeed, addr, 6)
	if bytes.Equal(leaf1, leaf3) {
		t.Fatalf("genLeaf returned the same value for two different leaf indices")
	}
}
