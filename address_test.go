package xmssmt

import "testing"

// TestAddressTypeZeroing checks spec.md §4.1/§8 property 7: setting the
// type word always clears words 4-7, regardless of what they held
// before.
func TestAddressTypeZeroing(t *testing.T) {
	var addr address
	addr.setOTS(7)
	addr.setChain(9)
	addr.setHash(11)
	addr.setKeyAndMask(2)

	addr.setType(ADDR_TYPE_HASHTREE)

	for i := 4; i < 8; i++ {
		if addr[i] != 0 {
			t.Fatalf("word %d not cleared after setType: %d", i, addr[i])
		}
	}
}

// TestAddressSubTreeFromPreservesOuterWords checks that subTreeFrom
// copies only the layer/tree words (0-2), leaving type and
// type-specific fields up to the caller.
func TestAddressSubTreeFromPreservesOuterWords(t *testing.T) {
	var src address
	src.setLayer(3)
	src.setTree(0x1122334455)
	src.setType(ADDR_TYPE_OTS)
	src.setOTS(99)

	var dst address
	dst.subTreeFrom(src)

	if dst[0] != src[0] || dst[1] != src[1] || dst[2] != src[2] {
		t.Fatalf("subTreeFrom did not copy layer/tree words")
	}
	if dst[3] != 0 || dst[4] != 0 {
		t.Fatalf("subTreeFrom should not carry over type/type-specific words")
	}
}

// TestAddressSerializationOrder checks the 32-byte big-endian word
// layout of spec.md §4.1/§6.
func TestAddressSerializationOrder(t *testing.T) {
	var addr address
	addr.setLayer(1)
	addr.setTree(2)
	addr.setType(ADDR_TYPE_LTREE)
	addr.setLTree(5)
	addr.setTreeHeight(6)
	addr.setTreeIndex(7)
	addr.setKeyAndMask(8)

	buf := addr.toBytes()
	if len(buf) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(buf))
	}
	want := []uint32{1, 0, 2, ADDR_TYPE_LTREE, 5, 6, 7, 8}
	for i, w := range want {
		got := uint32(buf[i*4])<<24 | uint32(buf[i*4+1])<<16 | uint32(buf[i*4+2])<<8 | uint32(buf[i*4+3])
		if got != w {
			t.Fatalf("word %d: got %d, want %d", i, got, w)
		}
	}
}
