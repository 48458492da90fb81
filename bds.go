package xmssmt

// The BDS (Buchmann-Dahmen-Szydlo) authentication path traversal
// algorithm (RFC 8391 §4.1.9.2, with the retain-array packing of the
// reference implementation). bdsState holds everything needed to
// amortise advancing a single XMSS tree's auth path from leaf j to j+1
// to O(h') work.

// bdsTreeHashInst is one partial-subtree builder, tracking a node still
// being assembled for a future auth-path slot.
type bdsTreeHashInst struct {
	node       []byte
	height     uint32
	nextIdx    uint32
	stackUsage uint32
	completed  bool
}

// bdsState is the per-tree BDS state described in spec.md §4.5.
type bdsState struct {
	hPrime uint32
	bdsK   uint32

	auth [][]byte // hPrime nodes
	keep [][]byte // hPrime/2 nodes

	stack       [][]byte // up to hPrime+1 nodes
	stackLevels []uint32
	stackOffset uint32

	treeHash []bdsTreeHashInst // hPrime-bdsK instances

	retain [][]byte // retainCount(bdsK) nodes

	nextLeaf uint32
}

// retainCount returns 2^bdsK - bdsK - 1, clamped to 0.
func retainCount(bdsK uint32) uint32 {
	if bdsK == 0 {
		return 0
	}
	v := (uint32(1) << bdsK) - bdsK - 1
	if v > (uint32(1) << 31) {
		return 0
	}
	return v
}

// validateBdsK rejects a bds_k that is odd or exceeds the per-tree
// height, per spec.md §4.5.
func validateBdsK(bdsK, hPrime uint32) Error {
	if bdsK%2 != 0 {
		return errorf(ErrParameters, "bds_k must be even")
	}
	if bdsK > hPrime {
		return errorf(ErrParameters, "bds_k exceeds per-tree height")
	}
	return nil
}

func newBDSState(n int, hPrime, bdsK uint32) *bdsState {
	s := &bdsState{hPrime: hPrime, bdsK: bdsK}
	s.auth = make([][]byte, hPrime)
	s.keep = make([][]byte, hPrime/2)
	s.stack = make([][]byte, hPrime+1)
	s.stackLevels = make([]uint32, hPrime+1)
	for i := range s.auth {
		s.auth[i] = make([]byte, n)
	}
	for i := range s.keep {
		s.keep[i] = make([]byte, n)
	}
	for i := range s.stack {
		s.stack[i] = make([]byte, n)
	}
	numTH := hPrime - bdsK
	s.treeHash = make([]bdsTreeHashInst, numTH)
	for i := range s.treeHash {
		s.treeHash[i] = bdsTreeHashInst{node: make([]byte, n), height: uint32(i)}
	}
	rc := retainCount(bdsK)
	s.retain = make([][]byte, rc)
	for i := range s.retain {
		s.retain[i] = make([]byte, n)
	}
	return s
}

// retainOff returns the base offset into the retain array for tree
// level L: the rows for each of the top bdsK levels are packed
// back-to-back, 2^(h'-1-L)-1 rows per level.
func retainOff(hPrime, L uint32) uint32 {
	return (uint32(1) << (hPrime - 1 - L)) + L - hPrime
}

// bdsStateUpdate feeds one more leaf into a tree still under
// construction: the leaf at state.nextLeaf is generated, pushed onto
// the state's own stack, and merged upward, capturing auth-path,
// treehash-instance and retain nodes along the way exactly as
// bdsTreeHashInit does. Used to build a "next" tree incrementally, one
// leaf per signature, so its partial stack survives serialisation.
// Reports false, without touching state, once every leaf has been
// processed; the finished root then sits in state.stack[0].
func (ctx *Context) bdsStateUpdate(pad *scratchPad, skSeed, pubSeed []byte, addr address, state *bdsState) bool {
	hPrime := state.hPrime
	bdsK := state.bdsK

	idx := state.nextLeaf
	if uint64(idx) == uint64(1)<<hPrime {
		return false
	}

	leaf := ctx.genLeaf(pad, skSeed, pubSeed, addr, idx)
	copy(state.stack[state.stackOffset], leaf)
	state.stackLevels[state.stackOffset] = 0
	state.stackOffset++

	for state.stackOffset > 1 &&
		state.stackLevels[state.stackOffset-1] == state.stackLevels[state.stackOffset-2] {
		L := state.stackLevels[state.stackOffset-1]
		top := state.stack[state.stackOffset-1]

		if (idx >> L) == 1 {
			copy(state.auth[L], top)
		} else if L < hPrime-bdsK && (idx>>L) == 3 {
			copy(state.treeHash[L].node, top)
		} else if L >= hPrime-bdsK {
			copy(state.retain[retainOff(hPrime, L)+(((idx>>L)-3)>>1)], top)
		}

		var hashAddr address
		hashAddr.subTreeFrom(addr)
		hashAddr.setType(ADDR_TYPE_HASHTREE)
		hashAddr.setTreeHeight(L)
		hashAddr.setTreeIndex(idx >> (L + 1))

		ctx.h(pad, pubSeed, hashAddr, state.stack[state.stackOffset-2], top, state.stack[state.stackOffset-2])
		state.stackLevels[state.stackOffset-2]++
		state.stackOffset--
	}

	state.nextLeaf++
	return true
}

// bdsTreeHashInit builds the full tree for leaves 0..2^hPrime-1 and
// populates state for signing from leaf index 0: the initial auth path,
// the starting node of each treehash instance, and the top-level retain
// nodes, per spec.md §4.5. It is bdsStateUpdate driven to completion,
// with the bookkeeping fields then reset for the active-tree role. The
// tree root is returned.
func (ctx *Context) bdsTreeHashInit(pad *scratchPad, skSeed, pubSeed []byte, addr address, state *bdsState) []byte {
	n := int(ctx.p.N)

	for ctx.bdsStateUpdate(pad, skSeed, pubSeed, addr, state) {
	}

	for i := range state.treeHash {
		state.treeHash[i].completed = true
		state.treeHash[i].stackUsage = 0
	}
	root := make([]byte, n)
	copy(root, state.stack[0])
	state.stackOffset = 0
	state.nextLeaf = 0

	return root
}

// bdsRound advances state.auth from leaf index leafIdx to leafIdx+1.
func (ctx *Context) bdsRound(pad *scratchPad, skSeed, pubSeed []byte, addr address, state *bdsState, leafIdx uint32) {
	n := int(ctx.p.N)
	hPrime := state.hPrime

	tau := uint32(0)
	for (leafIdx>>tau)&1 == 1 {
		tau++
	}

	savedLeft := pad.savedLeft[:n]
	savedRight := pad.savedRight[:n]
	if tau > 0 {
		copy(savedLeft, state.auth[tau-1])
		copy(savedRight, state.keep[(tau-1)/2])
	}

	if ((leafIdx>>(tau+1))&1) == 0 && tau < hPrime-1 {
		copy(state.keep[tau/2], state.auth[tau])
	}

	if tau == 0 {
		// leafIdx is even, so the next leaf's level-0 sibling is leafIdx
		// itself.
		copy(state.auth[0], ctx.genLeaf(pad, skSeed, pubSeed, addr, leafIdx))
	} else {
		var hashAddr address
		hashAddr.subTreeFrom(addr)
		hashAddr.setType(ADDR_TYPE_HASHTREE)
		hashAddr.setTreeHeight(tau - 1)
		hashAddr.setTreeIndex(leafIdx >> tau)
		ctx.h(pad, pubSeed, hashAddr, savedLeft, savedRight, state.auth[tau])

		for i := uint32(0); i < tau; i++ {
			if i < hPrime-state.bdsK {
				copy(state.auth[i], state.treeHash[i].node)
			} else {
				copy(state.auth[i], state.retain[retainOff(hPrime, i)+(((leafIdx>>i)-1)>>1)])
			}
		}

		limit := tau
		if hPrime-state.bdsK < limit {
			limit = hPrime - state.bdsK
		}
		for i := uint32(0); i < limit; i++ {
			startIdx := uint64(leafIdx) + 1 + 3*(uint64(1)<<i)
			if startIdx < (uint64(1) << hPrime) {
				state.treeHash[i] = bdsTreeHashInst{
					node:       state.treeHash[i].node,
					height:     i,
					nextIdx:    uint32(startIdx),
					completed:  false,
					stackUsage: 0,
				}
			}
		}
	}
}

// treeHashPriority returns the lowest level among the shared stack
// entries belonging to instance idx, or the instance's own target
// height if it owns no stack entries. An instance's entries always sit
// in the top stackUsage slots of the shared stack at the moment it is
// considered (bdsRound can reinitialise several instances in one call,
// so more than one incomplete instance may have interleaved entries on
// the one stack at once) — scanning past that many slots would read
// another instance's nodes and misreport this one's priority.
func (state *bdsState) treeHashPriority(idx int) uint32 {
	inst := &state.treeHash[idx]
	if inst.stackUsage == 0 {
		return inst.height
	}
	start := state.stackOffset - inst.stackUsage
	min := ^uint32(0)
	for i := start; i < state.stackOffset; i++ {
		if state.stackLevels[i] < min {
			min = state.stackLevels[i]
		}
	}
	return min
}

// bdsTreeHashUpdate spends up to `budget` leaf-processing steps
// advancing whichever incomplete treehash instance has the lowest
// priority, per spec.md §4.5. It returns the unspent budget: the
// XMSS-MT signer shares one per-signature budget across all layers, so
// a layer whose instances are all complete passes its allowance on.
func (ctx *Context) bdsTreeHashUpdate(pad *scratchPad, skSeed, pubSeed []byte, addr address, state *bdsState, budget uint32) uint32 {
	n := int(ctx.p.N)
	for step := uint32(0); step < budget; step++ {
		best := -1
		var bestPriority uint32
		for i := range state.treeHash {
			if state.treeHash[i].completed {
				continue
			}
			p := state.treeHashPriority(i)
			if best == -1 || p < bestPriority {
				best = i
				bestPriority = p
			}
		}
		if best == -1 {
			return budget - step
		}
		inst := &state.treeHash[best]

		leaf := ctx.genLeaf(pad, skSeed, pubSeed, addr, inst.nextIdx)
		node := pad.updateNode[:n]
		copy(node, leaf)
		level := uint32(0)

		// Only this instance's own entries (the top stackUsage slots) may
		// be folded in; the slot below them belongs to another instance.
		for inst.stackUsage > 0 && state.stackLevels[state.stackOffset-1] == level {
			top := state.stack[state.stackOffset-1]

			var hashAddr address
			hashAddr.subTreeFrom(addr)
			hashAddr.setType(ADDR_TYPE_HASHTREE)
			hashAddr.setTreeHeight(level)
			hashAddr.setTreeIndex(inst.nextIdx >> (level + 1))

			ctx.h(pad, pubSeed, hashAddr, top, node, node)

			state.stackOffset--
			inst.stackUsage--
			level++
		}

		if level == inst.height {
			copy(inst.node, node)
			inst.completed = true
		} else {
			copy(state.stack[state.stackOffset], node)
			state.stackLevels[state.stackOffset] = level
			state.stackOffset++
			inst.stackUsage++
			inst.nextIdx++
		}
	}
	return 0
}

// bdsSerializedSize returns xmss_bds_serialized_size(n, h', bds_k) as
// defined in spec.md §4.5.
func bdsSerializedSize(n int, hPrime, bdsK uint32) int {
	rc := int(retainCount(bdsK))
	return int(hPrime)*n + int(hPrime/2)*n + int(hPrime+1)*n + int(hPrime+1) + 4 +
		int(hPrime-bdsK)*(n+4+4+1+1) + rc*n + 4
}

// serialize writes state in the fixed field order of spec.md §4.5: auth,
// keep, stack, stackLevels, stackOffset, each treehash instance (node,
// height, nextIdx, stackUsage, completed), retain, nextLeaf. All
// integers are big endian.
func (state *bdsState) serialize() []byte {
	n := 0
	if len(state.auth) > 0 {
		n = len(state.auth[0])
	} else if len(state.stack) > 0 {
		n = len(state.stack[0])
	}
	buf := make([]byte, bdsSerializedSize(n, state.hPrime, state.bdsK))
	off := 0

	for _, node := range state.auth {
		copy(buf[off:], node)
		off += n
	}
	for _, node := range state.keep {
		copy(buf[off:], node)
		off += n
	}
	for _, node := range state.stack {
		copy(buf[off:], node)
		off += n
	}
	for _, lvl := range state.stackLevels {
		buf[off] = byte(lvl)
		off++
	}
	encodeUint64Into(uint64(state.stackOffset), buf[off:off+4])
	off += 4
	for _, inst := range state.treeHash {
		copy(buf[off:], inst.node)
		off += n
		encodeUint64Into(uint64(inst.height), buf[off:off+4])
		off += 4
		encodeUint64Into(uint64(inst.nextIdx), buf[off:off+4])
		off += 4
		buf[off] = byte(inst.stackUsage)
		off++
		if inst.completed {
			buf[off] = 1
		}
		off++
	}
	for _, node := range state.retain {
		copy(buf[off:], node)
		off += n
	}
	encodeUint64Into(uint64(state.nextLeaf), buf[off:off+4])
	return buf
}

// deserializeBDSState is the inverse of serialize. The returned state's
// slices are freshly allocated; the caller must supply the (n, hPrime,
// bdsK) the blob was produced under.
func deserializeBDSState(buf []byte, n int, hPrime, bdsK uint32) (*bdsState, Error) {
	if len(buf) != bdsSerializedSize(n, hPrime, bdsK) {
		return nil, errorf(ErrParameters, "wrong BDS state size")
	}
	state := newBDSState(n, hPrime, bdsK)
	off := 0

	for i := range state.auth {
		copy(state.auth[i], buf[off:off+n])
		off += n
	}
	for i := range state.keep {
		copy(state.keep[i], buf[off:off+n])
		off += n
	}
	for i := range state.stack {
		copy(state.stack[i], buf[off:off+n])
		off += n
	}
	for i := range state.stackLevels {
		state.stackLevels[i] = uint32(buf[off])
		off++
	}
	state.stackOffset = uint32(decodeUint64(buf[off : off+4]))
	off += 4
	for i := range state.treeHash {
		copy(state.treeHash[i].node, buf[off:off+n])
		off += n
		state.treeHash[i].height = uint32(decodeUint64(buf[off : off+4]))
		off += 4
		state.treeHash[i].nextIdx = uint32(decodeUint64(buf[off : off+4]))
		off += 4
		state.treeHash[i].stackUsage = uint32(buf[off])
		off++
		state.treeHash[i].completed = buf[off] != 0
		off++
	}
	for i := range state.retain {
		copy(state.retain[i], buf[off:off+n])
		off += n
	}
	state.nextLeaf = uint32(decodeUint64(buf[off : off+4]))
	return state, nil
}
