package xmssmt

// WOTS+ one-time signatures (RFC 8391 §3.1).

// wotsPkGen generates a WOTS+ public key from skSeed, returning len*n
// bytes (the n-byte chain-end value for each of the len chains).
func (ctx *Context) wotsPkGen(pad *scratchPad, skSeed, pubSeed []byte, addr address) []byte {
	n := int(ctx.p.N)
	wlen := int(ctx.p.WotsLen())
	buf := make([]byte, n*wlen)
	for i := 0; i < wlen; i++ {
		addr.setChain(uint32(i))
		addr.setHash(0)
		addr.setKeyAndMask(0)
		ctx.prfKeyGen(pad, skSeed, pubSeed, addr, buf[n*i:n*(i+1)])
		ctx.wotsGenChainInto(pad, buf[n*i:n*(i+1)], 0, uint16(ctx.p.WotsW)-1, pubSeed, addr, buf[n*i:n*(i+1)])
	}
	return buf
}

// wotsGenChainInto applies F for `steps` iterations starting from in,
// writing the result into out (which may alias in).
func (ctx *Context) wotsGenChainInto(pad *scratchPad, in []byte, start, steps uint16, pubSeed []byte, addr address, out []byte) {
	copy(out, in)
	for i := start; i < start+steps && i < uint16(ctx.p.WotsW); i++ {
		addr.setHash(uint32(i))
		ctx.f(pad, pubSeed, addr, out, out)
	}
}

// wotsChainLengths computes the len digits (message digits followed by
// the checksum digits) that drive WOTS+ signing and verification.
func (ctx *Context) wotsChainLengths(pad *scratchPad, msg []byte) []uint8 {
	len1 := ctx.p.WotsLen1()
	len2 := ctx.p.WotsLen2()
	logW := ctx.p.WotsLogW()
	ret := make([]uint8, len1+len2)

	ctx.toBaseW(msg, ret[:len1])

	var csum uint32
	for i := uint32(0); i < len1; i++ {
		csum += uint32(ctx.p.WotsW) - 1 - uint32(ret[i])
	}
	csum <<= (8 - ((len2 * uint32(logW)) % 8)) % 8

	csumBytes := encodeUint64(uint64(csum), int((len2*uint32(logW)+7)/8))
	ctx.toBaseW(csumBytes, ret[len1:])
	return ret
}

// toBaseW extracts len(output) base-w digits (log2(w) bits each) from
// input, big-endian.
func (ctx *Context) toBaseW(input []byte, output []uint8) {
	logW := ctx.p.WotsLogW()
	var in, bits int
	var total uint8
	for out := 0; out < len(output); out++ {
		if bits == 0 {
			total = input[in]
			in++
			bits = 8
		}
		bits -= int(logW)
		output[out] = uint8(uint16(total>>uint(bits)) & (uint16(ctx.p.WotsW) - 1))
	}
}

// wotsSign produces a WOTS+ signature of the n-byte message msg.
func (ctx *Context) wotsSign(pad *scratchPad, msg, skSeed, pubSeed []byte, addr address) []byte {
	lengths := ctx.wotsChainLengths(pad, msg)
	n := int(ctx.p.N)
	wlen := int(ctx.p.WotsLen())
	buf := make([]byte, n*wlen)
	for i := 0; i < wlen; i++ {
		addr.setChain(uint32(i))
		addr.setHash(0)
		addr.setKeyAndMask(0)
		secret := make([]byte, n)
		ctx.prfKeyGen(pad, skSeed, pubSeed, addr, secret)
		ctx.wotsGenChainInto(pad, secret, 0, uint16(lengths[i]), pubSeed, addr, buf[n*i:n*(i+1)])
		scopedZeroize(secret)
	}
	return buf
}

// wotsPkFromSig recovers the WOTS+ public key implied by sig over msg.
func (ctx *Context) wotsPkFromSig(pad *scratchPad, sig, msg, pubSeed []byte, addr address) []byte {
	lengths := ctx.wotsChainLengths(pad, msg)
	n := int(ctx.p.N)
	wlen := int(ctx.p.WotsLen())
	buf := make([]byte, n*wlen)
	for i := 0; i < wlen; i++ {
		addr.setChain(uint32(i))
		steps := uint16(ctx.p.WotsW) - 1 - uint16(lengths[i])
		ctx.wotsGenChainInto(pad, sig[n*i:n*(i+1)], uint16(lengths[i]), steps, pubSeed, addr, buf[n*i:n*(i+1)])
	}
	return buf
}
