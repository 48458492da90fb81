package xmssmt

import (
	"bytes"
	"crypto/subtle"
)

// PublicKey is an XMSS[MT] public key: OID ‖ root ‖ PUB_SEED (RFC 8391
// §4.1.8/§4.2.8). Stateless and safe for concurrent use.
type PublicKey struct {
	ctx     *Context
	root    []byte
	pubSeed []byte
}

// PrivateKey is an XMSS[MT] secret key together with the BDS traversal
// state that lets Sign amortise authentication-path maintenance. A
// PrivateKey is exclusively owned by its caller for the duration of
// any Sign call; nothing here is safe for concurrent signing.
type PrivateKey struct {
	ctx *Context

	idx     uint64
	skSeed  []byte
	skPrf   []byte
	root    []byte
	pubSeed []byte

	bdsK uint32

	// bds holds 2*D-1 states: bds[0..D-1] are the "current" tree at
	// each layer, bds[D..2D-2] are the precomputed "next" tree for
	// layers 0..D-2 (the top layer never needs one, its tree never
	// exhausts within idx_max).
	bds []*bdsState

	// wotsSigs[i] is the signature, under layer i+1's current tree,
	// of layer i's current tree root. Length D-1.
	wotsSigs [][]byte
}

// GenerateKeyPair draws fresh key material via randombytes (which must
// return 0 on success, matching spec.md §6's entropy contract) and
// builds the initial hypertree state for ctx's parameters.
func GenerateKeyPair(ctx *Context, bdsK uint32, randombytes func([]byte) int) (*PrivateKey, *PublicKey, Error) {
	p := ctx.Params()
	n := int(p.N)
	hPrime := p.TreeHeight()
	if err := validateBdsK(bdsK, hPrime); err != nil {
		return nil, nil, err
	}
	d := int(p.D)

	seed := make([]byte, 3*n)
	if randombytes(seed) != 0 {
		return nil, nil, errorf(ErrEntropy, "entropy source failed")
	}
	skSeed := seed[:n]
	skPrf := seed[n : 2*n]
	pubSeed := seed[2*n : 3*n]

	pad := ctx.newScratchPad()

	bds := make([]*bdsState, 2*d-1)
	wotsSigs := make([][]byte, d-1)

	var root []byte
	for j := 0; j < d; j++ {
		var addr address
		addr.setLayer(uint32(j))
		addr.setTree(0)

		state := newBDSState(n, hPrime, bdsK)
		r := ctx.bdsTreeHashInit(pad, skSeed, pubSeed, addr, state)
		bds[j] = state

		if j < d-1 {
			var parentAddr address
			parentAddr.setLayer(uint32(j + 1))
			parentAddr.setTree(0)
			parentAddr.setType(ADDR_TYPE_OTS)
			parentAddr.setOTS(0)
			wotsSigs[j] = ctx.wotsSign(pad, r, skSeed, pubSeed, parentAddr)
		} else {
			root = r
		}
	}
	for j := d; j < 2*d-1; j++ {
		bds[j] = newBDSState(n, hPrime, bdsK)
	}

	sk := &PrivateKey{
		ctx: ctx, idx: 0,
		skSeed: skSeed, skPrf: skPrf, root: root, pubSeed: pubSeed,
		bdsK: bdsK, bds: bds, wotsSigs: wotsSigs,
	}
	pk := &PublicKey{ctx: ctx, root: root, pubSeed: pubSeed}
	return sk, pk, nil
}

// RemainingSigs returns the number of signatures sk can still produce:
// 0 if exhausted, else idx_max - idx + 1 (spec.md §6).
func (sk *PrivateKey) RemainingSigs() uint64 {
	p := sk.ctx.Params()
	idxMax := p.IdxMax()
	if sk.idx > idxMax {
		return 0
	}
	return idxMax - sk.idx + 1
}

// PublicKey returns the public key matching sk.
func (sk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{ctx: sk.ctx, root: sk.root, pubSeed: sk.pubSeed}
}

// Sign produces a signature of msg and advances sk's index by one. The
// index is persisted (in sk.idx) before the signature is computed, per
// spec.md §4.6/§4.7's persist-before-emit discipline: callers MUST
// durably store sk before releasing the returned signature.
func (sk *PrivateKey) Sign(msg []byte) ([]byte, Error) {
	p := sk.ctx.Params()
	n := int(p.N)
	hPrime := p.TreeHeight()
	d := int(p.D)
	idxMax := p.IdxMax()

	if sk.idx > idxMax {
		return nil, errorf(ErrExhausted, "secret key exhausted")
	}
	idx := sk.idx
	sk.idx++

	pad := sk.ctx.newScratchPad()

	r := make([]byte, n)
	sk.ctx.prfIdx(pad, sk.skPrf, idx, r)

	mHash := make([]byte, n)
	if err := sk.ctx.hMsg(pad, r, sk.root, idx, bytes.NewReader(msg), mHash); err != nil {
		return nil, wrapErrorf(ErrVerify, err, "message hashing failed")
	}

	idxBytes := int(p.IdxBytes())
	sig := make([]byte, p.SigBytes())
	off := 0
	encodeUint64Into(idx, sig[off:off+idxBytes])
	off += idxBytes
	copy(sig[off:off+n], r)
	off += n

	mask := (uint64(1) << hPrime) - 1

	for i := 0; i < d; i++ {
		idxLeaf := uint32((idx >> (uint32(i) * hPrime)) & mask)
		idxTree := idx >> (uint32(i+1) * hPrime)

		var wotsSig []byte
		if i == 0 {
			var addr address
			addr.setLayer(0)
			addr.setTree(idxTree)
			addr.setType(ADDR_TYPE_OTS)
			addr.setOTS(idxLeaf)
			wotsSig = sk.ctx.wotsSign(pad, mHash, sk.skSeed, sk.pubSeed, addr)
		} else {
			wotsSig = sk.wotsSigs[i-1]
		}
		copy(sig[off:], wotsSig)
		off += len(wotsSig)

		for h := uint32(0); h < hPrime; h++ {
			copy(sig[off:off+n], sk.bds[i].auth[h])
			off += n
		}
	}

	sk.updateStates(pad, idx)

	return sig, nil
}

// updateStates advances the BDS state for every layer after the
// signature at idx has been emitted, per spec.md §4.7 (which subsumes
// §4.6's single-layer case at d=1). A single per-signature budget of
// (h'-bds_k)/2 leaf computations is shared across all layers: each
// active tree's treehash instances draw from it first, and whatever is
// left over goes to building the not-yet-active "next" trees one leaf
// at a time. The layer-0 next tree additionally gets one mandatory
// leaf per signature, outside the budget, so it completes exactly when
// the current layer-0 tree exhausts.
func (sk *PrivateKey) updateStates(pad *scratchPad, idx uint64) {
	p := sk.ctx.Params()
	hPrime := p.TreeHeight()
	d := int(p.D)
	h := p.FullHeight
	mask := (uint64(1) << hPrime) - 1

	updates := (hPrime - sk.bdsK) / 2

	if d > 1 {
		idxLeaf := idx & mask
		idxTree := idx >> hPrime
		if (1+idxTree)<<hPrime+idxLeaf < uint64(1)<<h {
			var nextAddr address
			nextAddr.setLayer(0)
			nextAddr.setTree(idxTree + 1)
			sk.ctx.bdsStateUpdate(pad, sk.skSeed, sk.pubSeed, nextAddr, sk.bds[d])
		}
	}

	marker := -1
	for i := 0; i < d; i++ {
		span := uint64(i+1) * uint64(hPrime)
		boundary := (idx+1)&((uint64(1)<<span)-1) == 0

		if !boundary {
			idxLeafI := (idx >> (uint64(i) * uint64(hPrime))) & mask
			idxTreeI := idx >> span

			var addr address
			addr.setLayer(uint32(i))
			addr.setTree(idxTreeI)

			if i == marker+1 {
				sk.ctx.bdsRound(pad, sk.skSeed, sk.pubSeed, addr, sk.bds[i], uint32(idxLeafI))
			}
			updates = sk.ctx.bdsTreeHashUpdate(pad, sk.skSeed, sk.pubSeed, addr, sk.bds[i], updates)

			// Spend leftover budget growing this layer's next tree, if
			// one still exists in the global index space.
			if i > 0 && updates > 0 &&
				(1+idxTreeI)<<hPrime+idxLeafI < uint64(1)<<(h-uint32(i)*hPrime) {
				var nextAddr address
				nextAddr.setLayer(uint32(i))
				nextAddr.setTree(idxTreeI + 1)
				sk.ctx.bdsStateUpdate(pad, sk.skSeed, sk.pubSeed, nextAddr, sk.bds[d+i])
				updates--
			}
			continue
		}

		if idx >= p.IdxMax() {
			continue
		}

		// The tree at this layer is exhausted: swap in the fully built
		// next state (its root sits in stack[0]) and have the parent
		// layer WOTS-sign that root at its next leaf.
		log.Logf("Tree boundary at layer %d (idx=%d) --- swapping in the next tree", i, idx)
		sk.bds[d+i], sk.bds[i] = sk.bds[i], sk.bds[d+i]

		parentIdxTree := (idx + 1) >> (uint64(i+2) * uint64(hPrime))
		parentOts := uint32(((idx >> span) + 1) & mask)

		var parentAddr address
		parentAddr.setLayer(uint32(i + 1))
		parentAddr.setTree(parentIdxTree)
		parentAddr.setType(ADDR_TYPE_OTS)
		parentAddr.setOTS(parentOts)
		sk.wotsSigs[i] = sk.ctx.wotsSign(pad, sk.bds[i].stack[0], sk.skSeed, sk.pubSeed, parentAddr)

		sk.bds[d+i].stackOffset = 0
		sk.bds[d+i].nextLeaf = 0
		for j := range sk.bds[i].treeHash {
			sk.bds[i].treeHash[j].completed = true
		}
		if updates > 0 {
			updates--
		}
		marker = i
	}
}

// Verify reports whether sig is a valid signature of msg under pk. It
// is a pure function: no state is read or written beyond its inputs.
func Verify(pk *PublicKey, msg, sig []byte) Error {
	p := pk.ctx.Params()
	n := int(p.N)
	hPrime := p.TreeHeight()
	d := int(p.D)
	idxBytes := int(p.IdxBytes())

	if len(sig) != int(p.SigBytes()) {
		return errorf(ErrVerify, "wrong signature length")
	}

	off := 0
	idx := decodeUint64(sig[off : off+idxBytes])
	off += idxBytes
	if idx > p.IdxMax() {
		return errorf(ErrVerify, "index exceeds idx_max")
	}
	r := sig[off : off+n]
	off += n

	pad := pk.ctx.newScratchPad()
	mHash := make([]byte, n)
	if err := pk.ctx.hMsg(pad, r, pk.root, idx, bytes.NewReader(msg), mHash); err != nil {
		return wrapErrorf(ErrVerify, err, "message hashing failed")
	}

	wotsSigSize := int(p.WotsSignatureSize())
	mask := (uint64(1) << hPrime) - 1

	node := mHash
	cur := idx
	for i := 0; i < d; i++ {
		idxLeaf := uint32(cur & mask)
		cur >>= hPrime
		idxTree := cur

		wotsSig := sig[off : off+wotsSigSize]
		off += wotsSigSize
		auth := make([][]byte, hPrime)
		for h := uint32(0); h < hPrime; h++ {
			auth[h] = sig[off : off+n]
			off += n
		}

		var otsAddr address
		otsAddr.setLayer(uint32(i))
		otsAddr.setTree(idxTree)
		otsAddr.setType(ADDR_TYPE_OTS)
		otsAddr.setOTS(idxLeaf)
		wotsPk := pk.ctx.wotsPkFromSig(pad, wotsSig, node, pk.pubSeed, otsAddr)

		var lAddr address
		lAddr.setLayer(uint32(i))
		lAddr.setTree(idxTree)
		lAddr.setType(ADDR_TYPE_LTREE)
		lAddr.setLTree(idxLeaf)
		leaf := pk.ctx.lTree(pad, wotsPk, pk.pubSeed, lAddr)

		var hAddr address
		hAddr.setLayer(uint32(i))
		hAddr.setTree(idxTree)
		hAddr.setType(ADDR_TYPE_HASHTREE)
		node = pk.ctx.computeRoot(pad, leaf, idxLeaf, auth, pk.pubSeed, hAddr)
	}

	if subtle.ConstantTimeCompare(node, pk.root) != 1 {
		return errorf(ErrVerify, "root mismatch")
	}
	return nil
}

// MarshalBinary encodes pk as OID ‖ root ‖ PUB_SEED (spec.md §6).
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	p := pk.ctx.Params()
	buf := make([]byte, 4+2*p.N)
	if err := p.WriteInto(buf[:4]); err != nil {
		return nil, err
	}
	copy(buf[4:], pk.root)
	copy(buf[4+p.N:], pk.pubSeed)
	return buf, nil
}

// UnmarshalPublicKey is the inverse of PublicKey.MarshalBinary.
func UnmarshalPublicKey(buf []byte) (*PublicKey, Error) {
	if len(buf) < 4 {
		return nil, errorf(ErrParameters, "public key too short")
	}
	var p Params
	if err := p.UnmarshalBinary(buf[:4]); err != nil {
		return nil, wrapErrorf(ErrParameters, err, "decoding public key OID")
	}
	if len(buf) != int(p.PKBytes()) {
		return nil, errorf(ErrParameters, "wrong public key length")
	}
	ctx, cErr := NewContext(p)
	if cErr != nil {
		return nil, cErr
	}
	root := make([]byte, p.N)
	pubSeed := make([]byte, p.N)
	copy(root, buf[4:4+p.N])
	copy(pubSeed, buf[4+p.N:4+2*p.N])
	return &PublicKey{ctx: ctx, root: root, pubSeed: pubSeed}, nil
}

// MarshalBinary encodes sk's non-BDS fields as OID ‖ idx ‖ SK_SEED ‖
// SK_PRF ‖ root ‖ PUB_SEED, per spec.md §3 with Errata 7900's field
// order applied. The BDS traversal state is serialised separately (see
// State) since its size depends on bds_k, which is not otherwise
// recoverable from the key bytes alone.
func (sk *PrivateKey) MarshalBinary() ([]byte, error) {
	p := sk.ctx.Params()
	idxBytes := int(p.IdxBytes())
	buf := make([]byte, p.SKBytes())
	if err := p.WriteInto(buf[:4]); err != nil {
		return nil, err
	}
	off := 4
	encodeUint64Into(sk.idx, buf[off:off+idxBytes])
	off += idxBytes
	copy(buf[off:], sk.skSeed)
	off += int(p.N)
	copy(buf[off:], sk.skPrf)
	off += int(p.N)
	copy(buf[off:], sk.root)
	off += int(p.N)
	copy(buf[off:], sk.pubSeed)
	return buf, nil
}

// UnmarshalPrivateKey is the inverse of PrivateKey.MarshalBinary. The
// returned key's BDS traversal state and cached cross-layer WOTS+
// signatures are zero-valued (sized for bdsK) until SetState is called
// with a blob previously produced by State; a caller that only needs
// sk.idx and the seed material (eg. to check RemainingSigs) may use the
// zero state as-is, but must not call Sign before SetState.
func UnmarshalPrivateKey(buf []byte, bdsK uint32) (*PrivateKey, Error) {
	if len(buf) < 4 {
		return nil, errorf(ErrParameters, "private key too short")
	}
	var p Params
	if err := p.UnmarshalBinary(buf[:4]); err != nil {
		return nil, wrapErrorf(ErrParameters, err, "decoding private key OID")
	}
	if len(buf) != int(p.SKBytes()) {
		return nil, errorf(ErrParameters, "wrong private key length")
	}
	ctx, cErr := NewContext(p)
	if cErr != nil {
		return nil, cErr
	}
	hPrime := p.TreeHeight()
	if err := validateBdsK(bdsK, hPrime); err != nil {
		return nil, err
	}

	n := int(p.N)
	idxBytes := int(p.IdxBytes())
	off := 4
	idx := decodeUint64(buf[off : off+idxBytes])
	off += idxBytes
	skSeed := make([]byte, n)
	copy(skSeed, buf[off:off+n])
	off += n
	skPrf := make([]byte, n)
	copy(skPrf, buf[off:off+n])
	off += n
	root := make([]byte, n)
	copy(root, buf[off:off+n])
	off += n
	pubSeed := make([]byte, n)
	copy(pubSeed, buf[off:off+n])

	d := int(p.D)
	bds := make([]*bdsState, 2*d-1)
	for i := range bds {
		bds[i] = newBDSState(n, hPrime, bdsK)
	}
	wotsSigs := make([][]byte, d-1)
	for i := range wotsSigs {
		wotsSigs[i] = make([]byte, p.WotsSignatureSize())
	}

	return &PrivateKey{
		ctx: ctx, idx: idx,
		skSeed: skSeed, skPrf: skPrf, root: root, pubSeed: pubSeed,
		bdsK: bdsK, bds: bds, wotsSigs: wotsSigs,
	}, nil
}

// Idx returns the index of the next signature sk will produce.
func (sk *PrivateKey) Idx() uint64 { return sk.idx }

// BdsK returns the retain parameter sk's BDS states were built with.
func (sk *PrivateKey) BdsK() uint32 { return sk.bdsK }

// Context returns the Context backing sk.
func (sk *PrivateKey) Context() *Context { return sk.ctx }

// StateSize returns the length of the blob State produces for sk: the
// 2*D-1 BDS states (sized by sk.BdsK()) plus the D-1 cached
// cross-layer WOTS+ signatures.
func (sk *PrivateKey) StateSize() int {
	p := sk.ctx.Params()
	n := int(p.N)
	hPrime := p.TreeHeight()
	d := int(p.D)
	perBDS := bdsSerializedSize(n, hPrime, sk.bdsK)
	return (2*d-1)*perBDS + (d-1)*int(p.WotsSignatureSize())
}

// State serialises everything Sign needs beyond the fields covered by
// MarshalBinary: the BDS traversal state of every layer and the
// cached cross-layer WOTS+ signatures (spec.md §3's "XMSS-MT state").
// A caller that persists both MarshalBinary and State, in that order,
// before releasing a signature satisfies the persist-before-emit
// discipline of spec.md §4.6/§4.7 across process restarts.
func (sk *PrivateKey) State() []byte {
	buf := make([]byte, sk.StateSize())
	off := 0
	for _, s := range sk.bds {
		blob := s.serialize()
		copy(buf[off:], blob)
		off += len(blob)
	}
	for _, w := range sk.wotsSigs {
		copy(buf[off:], w)
		off += len(w)
	}
	return buf
}

// SetState is the inverse of State; buf must have been produced by a
// State call on a key with the same parameters and the same BdsK.
func (sk *PrivateKey) SetState(buf []byte) Error {
	if len(buf) != sk.StateSize() {
		return errorf(ErrParameters, "wrong state size")
	}
	p := sk.ctx.Params()
	n := int(p.N)
	hPrime := p.TreeHeight()
	perBDS := bdsSerializedSize(n, hPrime, sk.bdsK)

	off := 0
	for i := range sk.bds {
		s, err := deserializeBDSState(buf[off:off+perBDS], n, hPrime, sk.bdsK)
		if err != nil {
			return err
		}
		sk.bds[i] = s
		off += perBDS
	}
	wlen := int(p.WotsSignatureSize())
	for i := range sk.wotsSigs {
		sig := make([]byte, wlen)
		copy(sig, buf[off:off+wlen])
		sk.wotsSigs[i] = sig
		off += wlen
	}
	return nil
}
