package xmssmt

// Context binds a validated Params value to the derived constants the
// rest of the engine needs on every call (chain lengths, tree height,
// and the registry name/OID if the parameters are a named instance).
type Context struct {
	p    Params
	name *string
	oid  uint32
	mt   bool
}

// NewContext validates p and returns a Context for it.
func NewContext(p Params) (*Context, Error) {
	if p.Func != SHA2 && p.Func != SHAKE {
		return nil, errorf(ErrParameters, "unknown hash function")
	}
	if p.N != 32 && p.N != 64 {
		return nil, errorf(ErrParameters, "N must be 32 or 64")
	}
	if p.WotsW != 16 {
		return nil, errorf(ErrParameters, "WotsW must be 16")
	}
	if p.D == 0 || p.D > 12 {
		return nil, errorf(ErrParameters, "D must be between 1 and 12")
	}
	if p.FullHeight == 0 || p.FullHeight > 60 {
		return nil, errorf(ErrParameters, "FullHeight out of range")
	}
	if p.FullHeight%p.D != 0 {
		return nil, errorf(ErrParameters, "FullHeight must be a multiple of D")
	}
	if p.TreeHeight() > 20 {
		return nil, errorf(ErrParameters, "per-tree height exceeds 20")
	}
	return &Context{p: p, mt: p.D > 1}, nil
}

// NewContextFromName looks up a named, registry-backed instance.
func NewContextFromName(name string) (*Context, Error) {
	p := ParamsFromName(name)
	if p == nil {
		return nil, errorf(ErrParameters, "no such algorithm: %s", name)
	}
	return NewContext(*p)
}

// NewContextFromOid looks up a registry-backed instance by its OID.
// mt selects the XMSS-MT namespace.
func NewContextFromOid(mt bool, oid uint32) (*Context, Error) {
	p := ParamsFromOid(mt, oid)
	if p == nil {
		return nil, errorf(ErrParameters, "unknown oid %d (mt=%v)", oid, mt)
	}
	return NewContext(*p)
}

func (ctx *Context) ensureNameAndOidAreSet() bool {
	if ctx.name != nil {
		return true
	}
	name, oid := ctx.p.LookupNameAndOid()
	if name == "" {
		return false
	}
	ctx.name = &name
	ctx.oid = oid
	return true
}

// Name returns the registry name of this instance, or "" if unnamed.
func (ctx *Context) Name() string {
	if ctx.ensureNameAndOidAreSet() {
		return *ctx.name
	}
	return ""
}

// Oid returns the registry OID of this instance, or 0 if unnamed.
func (ctx *Context) Oid() uint32 {
	ctx.ensureNameAndOidAreSet()
	return ctx.oid
}

// FromRFC reports whether this instance is one of the RFC 8391 named
// parameter sets.
func (ctx *Context) FromRFC() bool {
	return ctx.ensureNameAndOidAreSet()
}

// MT reports whether this is an XMSS-MT instance (D>1) as opposed to
// plain XMSS.
func (ctx *Context) MT() bool {
	return ctx.mt
}

// Params returns the parameter set backing this Context.
func (ctx *Context) Params() Params {
	return ctx.p
}

// SignatureSize returns the size in bytes of signatures produced under
// this Context.
func (ctx *Context) SignatureSize() uint32 {
	return ctx.p.SigBytes()
}
