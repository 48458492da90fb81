package xmssmt

import (
	"encoding/binary"
	goLog "log"

	"github.com/templexxx/xorsimd"
)

// encodeUint64Into writes x into out in big-endian order, using the full
// width of out (toByte(x, len(out)) in RFC 8391 notation).
func encodeUint64Into(x uint64, out []byte) {
	if len(out)%8 == 0 {
		binary.BigEndian.PutUint64(out[len(out)-8:], x)
		for i := 0; i < len(out)-8; i += 8 {
			binary.BigEndian.PutUint64(out[i:i+8], 0)
		}
	} else {
		for i := len(out) - 1; i >= 0; i-- {
			out[i] = byte(x)
			x >>= 8
		}
	}
}

// encodeUint64 returns toByte(x, outLen).
func encodeUint64(x uint64, outLen int) []byte {
	ret := make([]byte, outLen)
	encodeUint64Into(x, ret)
	return ret
}

// decodeUint64 interprets in as a big-endian unsigned integer.
func decodeUint64(in []byte) (ret uint64) {
	for i := 0; i < len(in); i++ {
		ret |= uint64(in[i]) << uint64(8*(len(in)-1-i))
	}
	return
}

// scopedZeroize wipes a secret-holding scratch buffer in place,
// per spec.md §5's "scoped acquisition pattern": buf XOR buf is all
// zero, computed with the same bulk-XOR routine the hash facade uses
// to mask chain inputs, rather than a plain byte loop.
func scopedZeroize(buf []byte) {
	xorsimd.Bytes(buf, buf, buf)
}

type dummyLogger struct{}
type stdlibLogger struct{}

func (logger *dummyLogger) Logf(format string, a ...interface{}) {}

func (logger *stdlibLogger) Logf(format string, a ...interface{}) {
	goLog.Printf(format, a...)
}

var log Logger = &dummyLogger{}

// Logger receives diagnostic messages about BDS scheduling decisions
// (currently the XMSS-MT tree-boundary swaps). By default nothing is
// logged.
type Logger interface {
	Logf(format string, a ...interface{})
}

// EnableLogging sends log output to the standard log package.
// For more control, see SetLogger.
func EnableLogging() {
	SetLogger(&stdlibLogger{})
}

// SetLogger installs logger as the destination for diagnostic output.
// Passing nil disables logging.
func SetLogger(logger Logger) {
	if logger == nil {
		log = &dummyLogger{}
		return
	}
	log = logger
}
