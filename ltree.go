package xmssmt

// lTree iteratively compresses the n-byte elements in pk (len*n bytes
// for a WOTS+ public key; the element count is len(pk)/n) down to a
// single n-byte leaf, operating in place on the caller's buffer
// (RFC 8391 §4.1.4). pk is destroyed.
func (ctx *Context) lTree(pad *scratchPad, pk []byte, pubSeed []byte, addr address) []byte {
	n := uint32(ctx.p.N)
	l := uint32(len(pk)) / n
	var height uint32
	for l > 1 {
		addr.setTreeHeight(height)
		parent := l >> 1
		for i := uint32(0); i < parent; i++ {
			addr.setTreeIndex(i)
			ctx.h(pad, pubSeed, addr,
				pk[2*i*n:(2*i+1)*n], pk[(2*i+1)*n:(2*i+2)*n],
				pk[i*n:(i+1)*n])
		}
		if l&1 == 1 {
			copy(pk[(l>>1)*n:((l>>1)+1)*n], pk[(l-1)*n:l*n])
			l = (l >> 1) + 1
		} else {
			l = l >> 1
		}
		height++
	}
	ret := make([]byte, n)
	copy(ret, pk[:n])
	return ret
}

// genLeaf computes the leaf node for WOTS+ key index ots under skSeed,
// pubSeed, at the (layer, tree) coordinate already present in addr.
func (ctx *Context) genLeaf(pad *scratchPad, skSeed, pubSeed []byte, addr address, ots uint32) []byte {
	var otsAddr, lTreeAddr address
	otsAddr.subTreeFrom(addr)
	otsAddr.setType(ADDR_TYPE_OTS)
	otsAddr.setOTS(ots)

	lTreeAddr.subTreeFrom(addr)
	lTreeAddr.setType(ADDR_TYPE_LTREE)
	lTreeAddr.setLTree(ots)

	pk := ctx.wotsPkGen(pad, skSeed, pubSeed, otsAddr)
	return ctx.lTree(pad, pk, pubSeed, lTreeAddr)
}
