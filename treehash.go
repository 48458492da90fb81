package xmssmt

// Iterative, stack-based Merkle tree construction and authentication
// path verification (RFC 8391 §4.1.6, §4.1.9).

// treeHash computes the root of the subtree of height t rooted at leaf
// index s (s must be a multiple of 2^t) by the classic O(h) iterative
// stack algorithm. addr carries the (layer, tree) coordinate; only
// those words are used, and the caller's addr is not modified.
// The merge stack lives in pad.mergeNodes/pad.mergeLevels (sized for the
// full per-tree height), so no stack or parent buffer is allocated here;
// only the returned root is a fresh, caller-owned copy.
func (ctx *Context) treeHash(pad *scratchPad, skSeed, pubSeed []byte, s, t uint32, addr address) []byte {
	n := int(ctx.p.N)
	depth := 0

	for i := uint32(0); i < (uint32(1) << t); i++ {
		idx := s + i
		leaf := ctx.genLeaf(pad, skSeed, pubSeed, addr, idx)
		copy(pad.mergeNodes[depth], leaf)
		pad.mergeLevels[depth] = 0
		depth++

		for depth >= 2 && pad.mergeLevels[depth-1] == pad.mergeLevels[depth-2] {
			level := pad.mergeLevels[depth-1]

			var hashAddr address
			hashAddr.subTreeFrom(addr)
			hashAddr.setType(ADDR_TYPE_HASHTREE)
			hashAddr.setTreeHeight(level)
			hashAddr.setTreeIndex((s >> (level + 1)) + (i >> (level + 1)))

			ctx.h(pad, pubSeed, hashAddr, pad.mergeNodes[depth-2], pad.mergeNodes[depth-1], pad.mergeNodes[depth-2])
			pad.mergeLevels[depth-2] = level + 1
			depth--
		}
	}

	root := make([]byte, n)
	copy(root, pad.mergeNodes[0][:n])
	return root
}

// computeRoot walks an authentication path up from leaf (at position
// leafIdx in its subtree) to reconstruct the subtree root. The walk
// uses pad.rootBuf as its running node, collapsed in place by h (left
// or right aliases the output); only the returned root is a fresh copy.
func (ctx *Context) computeRoot(pad *scratchPad, leaf []byte, leafIdx uint32, auth [][]byte, pubSeed []byte, addr address) []byte {
	n := int(ctx.p.N)
	buf := pad.rootBuf[:n]
	copy(buf, leaf)

	var hashAddr address
	hashAddr.subTreeFrom(addr)
	hashAddr.setType(ADDR_TYPE_HASHTREE)

	for h := 0; h < len(auth); h++ {
		hashAddr.setTreeHeight(uint32(h))
		hashAddr.setTreeIndex(leafIdx >> 1)
		if leafIdx&1 == 0 {
			ctx.h(pad, pubSeed, hashAddr, buf, auth[h], buf)
		} else {
			ctx.h(pad, pubSeed, hashAddr, auth[h], buf, buf)
		}
		leafIdx >>= 1
	}

	root := make([]byte, n)
	copy(root, buf)
	return root
}
