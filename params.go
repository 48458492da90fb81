package xmssmt

import (
	"encoding/binary"
	"reflect"
	"strconv"
	"strings"
)

// HashFunc selects the primitive backing core_hash.
type HashFunc uint8

const (
	// SHA2 is SHA-256 for N=32 and SHA-512 for N=64.
	SHA2 HashFunc = iota
	// SHAKE is SHAKE128 for N=32 and SHAKE256 for N=64.
	SHAKE
)

func (f HashFunc) String() string {
	switch f {
	case SHA2:
		return "SHA2"
	case SHAKE:
		return "SHAKE"
	default:
		return "unknown"
	}
}

// Params describes one XMSS[MT] parameter set. It is immutable after
// construction: every derived quantity (Len, IdxBytes, ...) is computed
// from these five fields.
type Params struct {
	Func       HashFunc // backing hash primitive
	N          uint32   // hash output length in bytes: 32 or 64
	FullHeight uint32   // full tree height h
	D          uint32   // number of layers, 1 for XMSS, >1 for XMSS-MT

	// WotsW is the Winternitz parameter. Only 16 is supported; the field
	// exists so Params carries its own derived-length arithmetic rather
	// than hard-coding 16 at every call site.
	WotsW uint16
}

func (p Params) String() string {
	if p.D == 1 {
		return "XMSS-" + p.Func.String() + "_" + itoa(p.FullHeight) + "_" + itoa(p.N*8)
	}
	return "XMSSMT-" + p.Func.String() + "_" + itoa(p.FullHeight) + "/" + itoa(p.D) + "_" + itoa(p.N*8)
}

func itoa(x uint32) string { return strconv.FormatUint(uint64(x), 10) }

// regEntry is one row of the RFC 8391 OID registry.
type regEntry struct {
	name   string
	mt     bool
	oid    uint32
	params Params
}

// registry lists exactly the RFC 8391 §5.3/§5.4 named parameter sets:
// XMSS OIDs 1-12, XMSS-MT OIDs 1-32.
var registry = []regEntry{
	{"XMSSMT-SHA2_20/2_256", true, 0x00000001, Params{SHA2, 32, 20, 2, 16}},
	{"XMSSMT-SHA2_20/4_256", true, 0x00000002, Params{SHA2, 32, 20, 4, 16}},
	{"XMSSMT-SHA2_40/2_256", true, 0x00000003, Params{SHA2, 32, 40, 2, 16}},
	{"XMSSMT-SHA2_40/4_256", true, 0x00000004, Params{SHA2, 32, 40, 4, 16}},
	{"XMSSMT-SHA2_40/8_256", true, 0x00000005, Params{SHA2, 32, 40, 8, 16}},
	{"XMSSMT-SHA2_60/3_256", true, 0x00000006, Params{SHA2, 32, 60, 3, 16}},
	{"XMSSMT-SHA2_60/6_256", true, 0x00000007, Params{SHA2, 32, 60, 6, 16}},
	{"XMSSMT-SHA2_60/12_256", true, 0x00000008, Params{SHA2, 32, 60, 12, 16}},

	{"XMSSMT-SHA2_20/2_512", true, 0x00000009, Params{SHA2, 64, 20, 2, 16}},
	{"XMSSMT-SHA2_20/4_512", true, 0x0000000a, Params{SHA2, 64, 20, 4, 16}},
	{"XMSSMT-SHA2_40/2_512", true, 0x0000000b, Params{SHA2, 64, 40, 2, 16}},
	{"XMSSMT-SHA2_40/4_512", true, 0x0000000c, Params{SHA2, 64, 40, 4, 16}},
	{"XMSSMT-SHA2_40/8_512", true, 0x0000000d, Params{SHA2, 64, 40, 8, 16}},
	{"XMSSMT-SHA2_60/3_512", true, 0x0000000e, Params{SHA2, 64, 60, 3, 16}},
	{"XMSSMT-SHA2_60/6_512", true, 0x0000000f, Params{SHA2, 64, 60, 6, 16}},
	{"XMSSMT-SHA2_60/12_512", true, 0x00000010, Params{SHA2, 64, 60, 12, 16}},

	{"XMSSMT-SHAKE_20/2_256", true, 0x00000011, Params{SHAKE, 32, 20, 2, 16}},
	{"XMSSMT-SHAKE_20/4_256", true, 0x00000012, Params{SHAKE, 32, 20, 4, 16}},
	{"XMSSMT-SHAKE_40/2_256", true, 0x00000013, Params{SHAKE, 32, 40, 2, 16}},
	{"XMSSMT-SHAKE_40/4_256", true, 0x00000014, Params{SHAKE, 32, 40, 4, 16}},
	{"XMSSMT-SHAKE_40/8_256", true, 0x00000015, Params{SHAKE, 32, 40, 8, 16}},
	{"XMSSMT-SHAKE_60/3_256", true, 0x00000016, Params{SHAKE, 32, 60, 3, 16}},
	{"XMSSMT-SHAKE_60/6_256", true, 0x00000017, Params{SHAKE, 32, 60, 6, 16}},
	{"XMSSMT-SHAKE_60/12_256", true, 0x00000018, Params{SHAKE, 32, 60, 12, 16}},

	{"XMSSMT-SHAKE_20/2_512", true, 0x00000019, Params{SHAKE, 64, 20, 2, 16}},
	{"XMSSMT-SHAKE_20/4_512", true, 0x0000001a, Params{SHAKE, 64, 20, 4, 16}},
	{"XMSSMT-SHAKE_40/2_512", true, 0x0000001b, Params{SHAKE, 64, 40, 2, 16}},
	{"XMSSMT-SHAKE_40/4_512", true, 0x0000001c, Params{SHAKE, 64, 40, 4, 16}},
	{"XMSSMT-SHAKE_40/8_512", true, 0x0000001d, Params{SHAKE, 64, 40, 8, 16}},
	{"XMSSMT-SHAKE_60/3_512", true, 0x0000001e, Params{SHAKE, 64, 60, 3, 16}},
	{"XMSSMT-SHAKE_60/6_512", true, 0x0000001f, Params{SHAKE, 64, 60, 6, 16}},
	{"XMSSMT-SHAKE_60/12_512", true, 0x00000020, Params{SHAKE, 64, 60, 12, 16}},

	{"XMSS-SHA2_10_256", false, 0x00000001, Params{SHA2, 32, 10, 1, 16}},
	{"XMSS-SHA2_16_256", false, 0x00000002, Params{SHA2, 32, 16, 1, 16}},
	{"XMSS-SHA2_20_256", false, 0x00000003, Params{SHA2, 32, 20, 1, 16}},

	{"XMSS-SHA2_10_512", false, 0x00000004, Params{SHA2, 64, 10, 1, 16}},
	{"XMSS-SHA2_16_512", false, 0x00000005, Params{SHA2, 64, 16, 1, 16}},
	{"XMSS-SHA2_20_512", false, 0x00000006, Params{SHA2, 64, 20, 1, 16}},

	{"XMSS-SHAKE_10_256", false, 0x00000007, Params{SHAKE, 32, 10, 1, 16}},
	{"XMSS-SHAKE_16_256", false, 0x00000008, Params{SHAKE, 32, 16, 1, 16}},
	{"XMSS-SHAKE_20_256", false, 0x00000009, Params{SHAKE, 32, 20, 1, 16}},

	{"XMSS-SHAKE_10_512", false, 0x0000000a, Params{SHAKE, 64, 10, 1, 16}},
	{"XMSS-SHAKE_16_512", false, 0x0000000b, Params{SHAKE, 64, 16, 1, 16}},
	{"XMSS-SHAKE_20_512", false, 0x0000000c, Params{SHAKE, 64, 20, 1, 16}},
}

var registryNameLut map[string]regEntry
var registryOidLut map[uint32]regEntry
var registryOidMTLut map[uint32]regEntry

func init() {
	registryNameLut = make(map[string]regEntry)
	registryOidLut = make(map[uint32]regEntry)
	registryOidMTLut = make(map[uint32]regEntry)
	for _, entry := range registry {
		registryNameLut[entry.name] = entry
		if entry.mt {
			registryOidMTLut[entry.oid] = entry
		} else {
			registryOidLut[entry.oid] = entry
		}
	}
}

// ParamsFromName returns the parameters for a named, registry-backed
// instance, or nil if name is not in the RFC 8391 registry.
func ParamsFromName(name string) *Params {
	entry, ok := registryNameLut[name]
	if !ok {
		return nil
	}
	p := entry.params
	return &p
}

// ParamsFromOid returns the parameters for the given OID, which lives in
// a namespace disjoint between XMSS (mt=false) and XMSS-MT (mt=true).
func ParamsFromOid(mt bool, oid uint32) *Params {
	var entry regEntry
	var ok bool
	if mt {
		entry, ok = registryOidMTLut[oid]
	} else {
		entry, ok = registryOidLut[oid]
	}
	if !ok {
		return nil
	}
	p := entry.params
	return &p
}

// ParamsFromName2 is like ParamsFromName but additionally accepts
// unregistered-but-valid parameter sets, eg. "XMSS-SHA2_12_256".
func ParamsFromName2(name string) (*Params, Error) {
	if p := ParamsFromName(name); p != nil {
		return p, nil
	}
	return parseParamsFromName(name)
}

func parseParamsFromName(name string) (*Params, Error) {
	var ret Params
	var mt bool

	bits := strings.SplitN(name, "-", 2)
	if len(bits) != 2 {
		return nil, errorf(ErrParameters, "missing separator between algorithm and parameters")
	}
	switch bits[0] {
	case "XMSS":
		mt = false
	case "XMSSMT":
		mt = true
	default:
		return nil, errorf(ErrParameters, "no such algorithm: %s", bits[0])
	}

	bits = strings.Split(bits[1], "_")
	if len(bits) != 3 {
		return nil, errorf(ErrParameters, "expected three parameters, not %d", len(bits))
	}
	switch bits[0] {
	case "SHA2":
		ret.Func = SHA2
	case "SHAKE":
		ret.Func = SHAKE
	default:
		return nil, errorf(ErrParameters, "no such hash function: %s", bits[0])
	}

	var unparsedFh string
	if strings.Contains(bits[1], "/") {
		if !mt {
			return nil, errorf(ErrParameters, "can't have D parameter for XMSS")
		}
		fhd := strings.SplitN(bits[1], "/", 2)
		unparsedFh = fhd[0]
		d, err := strconv.Atoi(fhd[1])
		if err != nil {
			return nil, wrapErrorf(ErrParameters, err, "can't parse D")
		}
		if d <= 0 || d > 12 {
			return nil, errorf(ErrParameters, "D out of bounds")
		}
		ret.D = uint32(d)
	} else {
		if mt {
			return nil, errorf(ErrParameters, "missing D parameter")
		}
		unparsedFh = bits[1]
		ret.D = 1
	}

	fh, err := strconv.Atoi(unparsedFh)
	if err != nil {
		return nil, wrapErrorf(ErrParameters, err, "can't parse FullHeight")
	}
	if fh <= 0 || fh > 60 {
		return nil, errorf(ErrParameters, "FullHeight out of bounds")
	}
	ret.FullHeight = uint32(fh)

	n, err := strconv.Atoi(bits[2])
	if err != nil {
		return nil, wrapErrorf(ErrParameters, err, "can't parse N")
	}
	if n != 256 && n != 512 {
		return nil, errorf(ErrParameters, "N must be 256 or 512 (bits)")
	}
	ret.N = uint32(n) / 8
	ret.WotsW = 16

	return &ret, nil
}

// ListNames lists every registered XMSS[MT] instance name.
func ListNames() (names []string) {
	names = make([]string, len(registry))
	for i, entry := range registry {
		names[i] = entry.name
	}
	return
}

// WotsLogW returns log2(WotsW).
func (p *Params) WotsLogW() uint8 {
	if p.WotsW != 16 {
		panic("only WotsW=16 is supported")
	}
	return 4
}

// WotsLen1 returns len1, the number of message digit chains.
func (p *Params) WotsLen1() uint32 {
	return 8 * p.N / uint32(p.WotsLogW())
}

// WotsLen2 returns len2, the number of checksum chains.
func (p *Params) WotsLen2() uint32 {
	return 3
}

// WotsLen returns len1+len2, the total number of WOTS+ chains.
func (p *Params) WotsLen() uint32 {
	return p.WotsLen1() + p.WotsLen2()
}

// WotsSignatureSize returns the size in bytes of a WOTS+ signature.
func (p *Params) WotsSignatureSize() uint32 {
	return p.WotsLen() * p.N
}

// TreeHeight returns the per-tree height h' = h/D.
func (p *Params) TreeHeight() uint32 {
	return p.FullHeight / p.D
}

// IdxBytes returns the width in bytes of the signing index field.
func (p *Params) IdxBytes() uint32 {
	if p.D == 1 {
		return 4
	}
	return (p.FullHeight + 7) / 8
}

// IdxMax returns idx_max = 2^h - 1, the largest usable signing index.
func (p *Params) IdxMax() uint64 {
	return (uint64(1) << p.FullHeight) - 1
}

// PKBytes returns the size in bytes of a public key.
func (p *Params) PKBytes() uint32 {
	return 4 + 2*p.N
}

// SKBytes returns the size in bytes of a secret key.
func (p *Params) SKBytes() uint32 {
	return 4 + p.IdxBytes() + 4*p.N
}

// SigBytes returns the size in bytes of a signature.
func (p *Params) SigBytes() uint32 {
	return p.IdxBytes() + p.N + p.D*(p.WotsSignatureSize()+p.TreeHeight()*p.N)
}

// LookupNameAndOid returns the registry name and OID for p, or ("", 0) if
// p is not a named parameter set.
func (p *Params) LookupNameAndOid() (string, uint32) {
	for _, entry := range registry {
		if reflect.DeepEqual(entry.params, *p) {
			return entry.name, entry.oid
		}
	}
	return "", 0
}

// MarshalBinary encodes p into the reserved OID space (big endian):
//
//	8-bit magic       0xEA
//	3-bit version     0
//	1-bit reserved
//	4-bit compr-n     (N/8)-1
//	2-bit hash        the HashFunc
//	2-bit reserved
//	6-bit full-height
//	6-bit d
func (p *Params) MarshalBinary() ([]byte, error) {
	ret := make([]byte, 4)
	if err := p.WriteInto(ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// WriteInto writes the encoding produced by MarshalBinary into buf,
// which must be (at least) 4 bytes long.
func (p *Params) WriteInto(buf []byte) error {
	if p.N%8 != 0 || p.N > 128 {
		return errorf(ErrParameters, "N out of range")
	}
	if p.FullHeight > 63 {
		return errorf(ErrParameters, "FullHeight too large")
	}
	if p.D > 63 {
		return errorf(ErrParameters, "D too large")
	}
	var val uint32
	val |= 0xea << 24
	val |= ((p.N / 8) - 1) << 16
	val |= uint32(p.Func) << 14
	val |= p.FullHeight << 6
	val |= p.D
	binary.BigEndian.PutUint32(buf, val)
	return nil
}

// UnmarshalBinary decodes the encoding produced by MarshalBinary.
func (p *Params) UnmarshalBinary(buf []byte) error {
	if len(buf) != 4 {
		return errorf(ErrParameters, "must be 4 bytes long (got %d)", len(buf))
	}
	val := binary.BigEndian.Uint32(buf)
	if val>>24 != 0xea {
		return errorf(ErrParameters, "not compressed parameters (bad magic)")
	}
	if (val>>21)&0x7 != 0 {
		return errorf(ErrParameters, "unsupported compressed parameters version")
	}
	p.N = (((val >> 16) & 0xf) + 1) * 8
	p.Func = HashFunc((val >> 14) & 0x3)
	p.FullHeight = (val >> 6) & 0x3f
	p.D = val & 0x3f
	p.WotsW = 16
	return nil
}
