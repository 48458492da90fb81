package xmssmt

import "fmt"

// ErrorKind classifies the failure modes an engine operation can return.
type ErrorKind int

const (
	// ErrParameters: unknown OID/name, a bds_k that is odd or exceeds the
	// per-tree height, or a layer count out of the supported range.
	// Raised before any state is mutated.
	ErrParameters ErrorKind = iota
	// ErrEntropy: the caller's entropy callback returned a non-zero status
	// during keygen. No state is written.
	ErrEntropy
	// ErrExhausted: sk.idx exceeds idx_max on entry to Sign. sk is
	// unchanged.
	ErrExhausted
	// ErrVerify: idx out of range or the final root comparison failed.
	// No state mutation occurs; this is also returned for malformed input
	// of the wrong fixed size.
	ErrVerify
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParameters:
		return "parameters"
	case ErrEntropy:
		return "entropy"
	case ErrExhausted:
		return "exhausted"
	case ErrVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every exported engine operation.
type Error interface {
	error
	Kind() ErrorKind
	Inner() error
}

type errorImpl struct {
	kind  ErrorKind
	msg   string
	inner error
}

func (err *errorImpl) Kind() ErrorKind { return err.kind }
func (err *errorImpl) Inner() error    { return err.inner }

func (err *errorImpl) Error() string {
	if err.inner != nil {
		return fmt.Sprintf("%s: %s: %s", err.kind, err.msg, err.inner.Error())
	}
	return fmt.Sprintf("%s: %s", err.kind, err.msg)
}

func errorf(kind ErrorKind, format string, a ...interface{}) *errorImpl {
	return &errorImpl{kind: kind, msg: fmt.Sprintf(format, a...)}
}

func wrapErrorf(kind ErrorKind, err error, format string, a ...interface{}) *errorImpl {
	return &errorImpl{kind: kind, msg: fmt.Sprintf(format, a...), inner: err}
}

// NewError builds an Error of the given kind. It exists so
// collaborator packages (keystore, cmd/xmssmt) that wrap the engine
// can report failures through the same four-valued taxonomy as the
// engine itself, without reaching into its unexported constructors.
func NewError(kind ErrorKind, format string, a ...interface{}) Error {
	return errorf(kind, format, a...)
}

// WrapError is like NewError but chains an underlying error.
func WrapError(kind ErrorKind, err error, format string, a ...interface{}) Error {
	return wrapErrorf(kind, err, format, a...)
}
