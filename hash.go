package xmssmt

// The hash facade: F, H, H_msg, PRF, PRF_keygen and PRF_idx, all built on
// top of a single core_hash dispatch point (RFC 8391 §5.1).

import (
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"github.com/templexxx/xor"
	"golang.org/x/crypto/sha3"
)

const (
	hashPaddingF         = 0
	hashPaddingH         = 1
	hashPaddingHashMsg   = 2
	hashPaddingPRF       = 3
	hashPaddingPRFKeyGen = 4
)

// scratchPad holds every reusable buffer an XMSS tree walk needs so
// that the hash facade and the treehash/BDS merge stack don't call
// make() on the hot path: each buffer below is sized once, when the
// pad is built (once per keygen/sign/verify call), and every
// subsequent F/H/PRF/PRF_keygen/merge step writes into its own fixed
// slot instead of allocating. It holds no secret state of its own
// once the call returns.
type scratchPad struct {
	shake sha3.ShakeHash

	// Composition buffers for the hash facade, one set per primitive so
	// nested calls (eg. h calling prfAddr three times) never alias.
	prfAddrIn   []byte // toByte(3,n) || key || ADRS
	prfIdxIn    []byte // toByte(3,n) || sk_prf || toByte(idx,32)
	prfKeygenIn []byte // toByte(4,n) || sk_seed || pub_seed || ADRS
	fKey        []byte // prf_key scratch for F
	fMaskL      []byte // bitmask_L scratch for F
	fIn         []byte // toByte(0,n) || prf_key || (in XOR bitmask_L)
	hKey        []byte // prf_key scratch for H
	hMaskL      []byte // bitmask_L scratch for H
	hMaskR      []byte // bitmask_R scratch for H
	hMaskedL    []byte // left XOR bitmask_L
	hMaskedR    []byte // right XOR bitmask_R
	hIn         []byte // toByte(1,n) || prf_key || masked_l || masked_r

	// mergeNodes/mergeLevels back treeHash's fixed-depth merge stack:
	// at most h'+1 node/level pairs are ever live at once, so this
	// single preallocated pool, indexed by current stack depth,
	// replaces a fresh []byte per merge step. The BDS walks use their
	// state's own stack instead, since partial merges there must
	// survive serialisation.
	mergeNodes  [][]byte
	mergeLevels []uint32

	// rootBuf is a scratch leaf/root-sized buffer for computeRoot's walk.
	rootBuf []byte

	// savedLeft/savedRight hold bdsRound's captured (auth, keep) pair
	// across the single H call that folds them into the new auth node;
	// kept distinct from h's own hKey/hMaskL/hMaskR/hMaskedL/hMaskedR/hIn
	// scratch so the two calls never alias each other's workspace.
	savedLeft  []byte
	savedRight []byte

	// updateNode is bdsTreeHashUpdate's running merge node: the fresh
	// leaf is copied in, then each fold with the shared stack writes the
	// parent back in place via h's alias-safe output.
	updateNode []byte
}

func (ctx *Context) newScratchPad() *scratchPad {
	n := int(ctx.p.N)
	maxDepth := int(ctx.p.TreeHeight()) + 2
	pad := &scratchPad{
		prfAddrIn:   make([]byte, n+n+32),
		prfIdxIn:    make([]byte, n+n+32),
		prfKeygenIn: make([]byte, n+n+n+32),
		fKey:        make([]byte, n),
		fMaskL:      make([]byte, n),
		fIn:         make([]byte, n+n+n),
		hKey:        make([]byte, n),
		hMaskL:      make([]byte, n),
		hMaskR:      make([]byte, n),
		hMaskedL:    make([]byte, n),
		hMaskedR:    make([]byte, n),
		hIn:         make([]byte, n+n+n+n),

		mergeLevels: make([]uint32, maxDepth),
		rootBuf:     make([]byte, n),

		savedLeft:  make([]byte, n),
		savedRight: make([]byte, n),
		updateNode: make([]byte, n),
	}
	pad.mergeNodes = make([][]byte, maxDepth)
	for i := range pad.mergeNodes {
		pad.mergeNodes[i] = make([]byte, n)
	}
	if ctx.p.Func == SHAKE {
		if n == 32 {
			pad.shake = sha3.NewShake128()
		} else {
			pad.shake = sha3.NewShake256()
		}
	}
	return pad
}

// coreHash computes core_hash(in) into out, which must be n bytes.
func (ctx *Context) coreHash(pad *scratchPad, in, out []byte) {
	if ctx.p.Func == SHA2 {
		switch ctx.p.N {
		case 32:
			sum := sha256.Sum256(in)
			copy(out, sum[:])
		case 64:
			sum := sha512.Sum512(in)
			copy(out, sum[:])
		}
		return
	}
	pad.shake.Reset()
	pad.shake.Write(in)
	pad.shake.Read(out[:ctx.p.N])
}

// prfAddr computes PRF(key, addr) = core_hash(toByte(3,n) || key || ADRS).
func (ctx *Context) prfAddr(pad *scratchPad, key []byte, addr address, out []byte) {
	n := int(ctx.p.N)
	buf := pad.prfAddrIn[:n+n+32]
	encodeUint64Into(hashPaddingPRF, buf[:n])
	copy(buf[n:2*n], key)
	addr.writeInto(buf[2*n:])
	ctx.coreHash(pad, buf, out)
}

// prfIdx computes PRF_idx(sk_prf, idx) = core_hash(toByte(3,n) || sk_prf || toByte(idx,32)).
func (ctx *Context) prfIdx(pad *scratchPad, skPrf []byte, idx uint64, out []byte) {
	n := int(ctx.p.N)
	buf := pad.prfIdxIn[:n+n+32]
	encodeUint64Into(hashPaddingPRF, buf[:n])
	copy(buf[n:2*n], skPrf)
	encodeUint64Into(idx, buf[2*n:])
	ctx.coreHash(pad, buf, out)
}

// prfKeyGen computes PRF_keygen(sk_seed, pub_seed, addr).
func (ctx *Context) prfKeyGen(pad *scratchPad, skSeed, pubSeed []byte, addr address, out []byte) {
	n := int(ctx.p.N)
	buf := pad.prfKeygenIn[:n+n+n+32]
	encodeUint64Into(hashPaddingPRFKeyGen, buf[:n])
	copy(buf[n:2*n], skSeed)
	copy(buf[2*n:3*n], pubSeed)
	addr.writeInto(buf[3*n:])
	ctx.coreHash(pad, buf, out)
}

// f computes F(key, addr, in): one-block chaining used by WOTS+. in and
// out may alias (wotsGenChainInto chains in place): every read of in
// happens into pad.fIn before out is ever written.
func (ctx *Context) f(pad *scratchPad, key []byte, addr address, in, out []byte) {
	n := int(ctx.p.N)
	addr.setKeyAndMask(0)
	ctx.prfAddr(pad, key, addr, pad.fKey[:n]) // prf_key
	addr.setKeyAndMask(1)
	ctx.prfAddr(pad, key, addr, pad.fMaskL[:n]) // bitmask_L

	buf := pad.fIn[:n+n+n]
	encodeUint64Into(hashPaddingF, buf[:n])
	copy(buf[n:2*n], pad.fKey[:n])
	xor.BytesSameLen(buf[2*n:], in, pad.fMaskL[:n])
	ctx.coreHash(pad, buf, out)
}

// h computes H(key, addr, left, right): two-block tree hash. out may
// alias left or right (the treehash/BDS merge step collapses the top
// of its stack in place): both are fully read into scratch buffers
// before out is written.
func (ctx *Context) h(pad *scratchPad, key []byte, addr address, left, right, out []byte) {
	n := int(ctx.p.N)
	addr.setKeyAndMask(0)
	ctx.prfAddr(pad, key, addr, pad.hKey[:n])
	addr.setKeyAndMask(1)
	ctx.prfAddr(pad, key, addr, pad.hMaskL[:n])
	addr.setKeyAndMask(2)
	ctx.prfAddr(pad, key, addr, pad.hMaskR[:n])

	xor.BytesSameLen(pad.hMaskedL[:n], left, pad.hMaskL[:n])
	xor.BytesSameLen(pad.hMaskedR[:n], right, pad.hMaskR[:n])

	buf := pad.hIn[:n+n+n+n]
	encodeUint64Into(hashPaddingH, buf[:n])
	copy(buf[n:2*n], pad.hKey[:n])
	copy(buf[2*n:3*n], pad.hMaskedL[:n])
	copy(buf[3*n:], pad.hMaskedR[:n])
	ctx.coreHash(pad, buf, out)
}

// hMsg computes H_msg(r, root, idx, msg) = core_hash(toByte(2,n) || r || root || toByte(idx,n) || msg).
// msg is read as a stream so the caller need not buffer the full
// message when it is large.
func (ctx *Context) hMsg(pad *scratchPad, r, root []byte, idx uint64, msg io.Reader, out []byte) error {
	n := int(ctx.p.N)
	if ctx.p.Func == SHA2 {
		var h interface {
			io.Writer
			Sum([]byte) []byte
		}
		if n == 32 {
			h = sha256.New()
		} else {
			h = sha512.New()
		}
		h.Write(encodeUint64(hashPaddingHashMsg, n))
		h.Write(r)
		h.Write(root)
		h.Write(encodeUint64(idx, n))
		if _, err := io.Copy(h, msg); err != nil {
			return err
		}
		copy(out, h.Sum(nil))
		return nil
	}

	pad.shake.Reset()
	pad.shake.Write(encodeUint64(hashPaddingHashMsg, n))
	pad.shake.Write(r)
	pad.shake.Write(root)
	pad.shake.Write(encodeUint64(idx, n))
	if _, err := io.Copy(pad.shake, msg); err != nil {
		return err
	}
	pad.shake.Read(out[:n])
	return nil
}
