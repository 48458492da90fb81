// Package keystore adapts the teacher's fsContainer pattern
// (github.com/bwesterb/go-xmssmt's container.go) into a durable,
// crash-safe home for an xmssmt.PrivateKey: the engine package itself
// touches neither the filesystem nor a lockfile (spec.md §1/§9), so
// anything that needs to survive a process restart lives here, one
// layer up.
package keystore

import (
	"os"
	"path/filepath"

	"github.com/bwesterb/byteswriter"
	"github.com/cespare/xxhash"
	"github.com/hashicorp/go-multierror"
	"github.com/nightlyone/lockfile"
	"golang.org/x/sys/unix"

	"github.com/edsrzf/mmap-go"

	"github.com/krontab/xmssmt"
)

// keyMagicBytes/cacheMagicBytes are the first 8 bytes of the key file
// and cache file respectively, in the teacher's FS_CONTAINER_*_MAGIC
// style (container.go), spelled as ASCII here instead of a hex literal.
var keyMagicBytes = []byte("xmsskey1")
var cacheMagicBytes = []byte("xmsscach")

const (
	keyFileHeaderSize   = 8 + 4 // magic + bdsK
	cacheFileHeaderSize = 8     // magic
	cacheFileTrailer    = 8     // xxhash64 checksum
)

// FileKeyStore is a PrivateKey backed by three files, in the teacher's
// container.go layout:
//
//	path        the key header, bdsK, and sk.MarshalBinary()
//	path.lock   an advisory lock guarding concurrent processes
//	path.cache  the BDS traversal state (sk.State()), mmap'd
//
// A FileKeyStore is not safe for concurrent use from multiple
// goroutines, matching spec.md §5's single-owner model for Sign; the
// lockfile keeps two separate processes, or two FileKeyStores in one
// process, from holding the same key at once.
type FileKeyStore struct {
	path  string
	flock lockfile.Lockfile

	sk *xmssmt.PrivateKey

	cacheFile *os.File
	cacheMap  mmap.MMap

	closed bool
}

// Create draws a fresh key pair via randombytes and persists it (key
// file + cache file) before returning. bdsK is the retain parameter
// passed to xmssmt.GenerateKeyPair.
func Create(path string, ctx *xmssmt.Context, bdsK uint32, randombytes func([]byte) int) (*FileKeyStore, *xmssmt.PublicKey, xmssmt.Error) {
	sk, pk, err := xmssmt.GenerateKeyPair(ctx, bdsK, randombytes)
	if err != nil {
		return nil, nil, err
	}

	ks, lockErr := acquireLock(path)
	if lockErr != nil {
		return nil, nil, lockErr
	}
	ks.sk = sk

	if err := ks.writeKeyFile(); err != nil {
		ks.flock.Unlock()
		return nil, nil, err
	}
	if err := ks.createCacheFile(); err != nil {
		ks.flock.Unlock()
		return nil, nil, err
	}
	if err := ks.flushCache(); err != nil {
		ks.Close()
		return nil, nil, err
	}
	return ks, pk, nil
}

// Open loads an existing key file and its cache from disk, verifying
// the cache's xxhash checksum to catch a torn write.
func Open(path string) (*FileKeyStore, xmssmt.Error) {
	ks, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	keyBuf, rErr := os.ReadFile(path)
	if rErr != nil {
		ks.flock.Unlock()
		return nil, xmssmt.WrapError(xmssmt.ErrParameters, rErr, "reading key file")
	}
	if len(keyBuf) < keyFileHeaderSize || !bytesEqual(keyBuf[:8], keyMagicBytes) {
		ks.flock.Unlock()
		return nil, xmssmt.NewError(xmssmt.ErrParameters, "bad key file magic")
	}
	bdsK := uint32(keyBuf[8])<<24 | uint32(keyBuf[9])<<16 | uint32(keyBuf[10])<<8 | uint32(keyBuf[11])

	sk, uErr := xmssmt.UnmarshalPrivateKey(keyBuf[keyFileHeaderSize:], bdsK)
	if uErr != nil {
		ks.flock.Unlock()
		return nil, uErr
	}
	ks.sk = sk

	if err := ks.openCacheFile(); err != nil {
		ks.flock.Unlock()
		return nil, err
	}

	stateSize := sk.StateSize()
	got := ks.cacheMap[cacheFileHeaderSize : cacheFileHeaderSize+stateSize]
	wantSum := xxhash.Sum64(got)
	gotSum := beUint64(ks.cacheMap[cacheFileHeaderSize+stateSize:])
	if wantSum != gotSum {
		ks.closeCacheFile()
		ks.flock.Unlock()
		return nil, xmssmt.NewError(xmssmt.ErrParameters, "cache checksum mismatch (torn write?)")
	}
	if err := sk.SetState(got); err != nil {
		ks.closeCacheFile()
		ks.flock.Unlock()
		return nil, err
	}

	return ks, nil
}

func acquireLock(path string) (*FileKeyStore, xmssmt.Error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, xmssmt.WrapError(xmssmt.ErrParameters, err, "resolving key path")
	}
	flock, err := lockfile.New(abs + ".lock")
	if err != nil {
		return nil, xmssmt.WrapError(xmssmt.ErrParameters, err, "creating lockfile")
	}
	// lockfile.TryLock lets the owning process take its own lock again,
	// so a lock already held by this process is refused here.
	if owner, oerr := flock.GetOwner(); oerr == nil && owner.Pid == os.Getpid() {
		return nil, xmssmt.NewError(xmssmt.ErrParameters, "key file is already open in this process")
	}
	if err := flock.TryLock(); err != nil {
		return nil, xmssmt.WrapError(xmssmt.ErrParameters, err, "locking key file")
	}
	return &FileKeyStore{path: abs, flock: flock}, nil
}

// PrivateKey returns the key this store wraps. The returned key is
// exclusively owned by ks; callers must route every Sign through
// ks.Sign, not sk.Sign directly, or the persisted state will go stale.
func (ks *FileKeyStore) PrivateKey() *xmssmt.PrivateKey { return ks.sk }

// Sign signs msg and durably persists the advanced index and BDS
// state before returning the signature, satisfying spec.md §5's
// persist-before-emit requirement for any caller that only talks to
// the keystore (never the bare PrivateKey).
func (ks *FileKeyStore) Sign(msg []byte) ([]byte, xmssmt.Error) {
	sig, err := ks.sk.Sign(msg)
	if err != nil {
		return nil, err
	}
	if err := ks.writeKeyFile(); err != nil {
		return nil, err
	}
	if err := ks.flushCache(); err != nil {
		return nil, err
	}
	return sig, nil
}

// writeKeyFile rewrites the (small) key file atomically: write to a
// temp file, fsync it, rename over the old key file, then fsync the
// parent directory so the rename itself is durable. Mirrors the
// teacher's fsContainer.writeKeyFile, with golang.org/x/sys/unix in
// place of direct syscall.Open/Fsync calls.
func (ks *FileKeyStore) writeKeyFile() xmssmt.Error {
	skBytes, err := ks.sk.MarshalBinary()
	if err != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "marshalling secret key")
	}

	buf := make([]byte, keyFileHeaderSize+len(skBytes))
	copy(buf[:8], keyMagicBytes)
	be32Into(buf[8:12], ks.sk.BdsK())
	copy(buf[keyFileHeaderSize:], skBytes)

	tmpPath := ks.path + ".tmp"
	tmpFile, oerr := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if oerr != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, oerr, "creating temporary key file")
	}
	if _, werr := tmpFile.Write(buf); werr != nil {
		tmpFile.Close()
		return xmssmt.WrapError(xmssmt.ErrParameters, werr, "writing temporary key file")
	}
	if serr := tmpFile.Sync(); serr != nil {
		tmpFile.Close()
		return xmssmt.WrapError(xmssmt.ErrParameters, serr, "syncing temporary key file")
	}
	if cerr := tmpFile.Close(); cerr != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, cerr, "closing temporary key file")
	}
	if rerr := os.Rename(tmpPath, ks.path); rerr != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, rerr, "replacing key file")
	}

	dirFd, derr := unix.Open(filepath.Dir(ks.path), unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if derr != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, derr, "opening key directory for fsync")
	}
	defer unix.Close(dirFd)
	if ferr := unix.Fsync(dirFd); ferr != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, ferr, "syncing key directory")
	}
	return nil
}

// createCacheFile allocates and mmaps a fresh cache file sized to hold
// sk's BDS state, and writes its magic header; the state itself is
// written by flushCache.
func (ks *FileKeyStore) createCacheFile() xmssmt.Error {
	size := cacheFileHeaderSize + ks.sk.StateSize() + cacheFileTrailer
	f, err := os.OpenFile(ks.path+".cache", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "creating cache file")
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "sizing cache file")
	}
	m, err := mmap.MapRegion(f, size, mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "mmapping cache file")
	}
	ks.cacheFile = f
	ks.cacheMap = m
	copy(ks.cacheMap[:8], cacheMagicBytes)
	return nil
}

// openCacheFile mmaps an existing cache file in place.
func (ks *FileKeyStore) openCacheFile() xmssmt.Error {
	f, err := os.OpenFile(ks.path+".cache", os.O_RDWR, 0600)
	if err != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "opening cache file")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "stat-ing cache file")
	}
	wantSize := cacheFileHeaderSize + ks.sk.StateSize() + cacheFileTrailer
	if st.Size() != int64(wantSize) {
		f.Close()
		return xmssmt.NewError(xmssmt.ErrParameters, "cache file has the wrong size for this key")
	}
	m, err := mmap.MapRegion(f, wantSize, mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "mmapping cache file")
	}
	if !bytesEqual(m[:8], cacheMagicBytes) {
		m.Unmap()
		f.Close()
		return xmssmt.NewError(xmssmt.ErrParameters, "bad cache file magic")
	}
	ks.cacheFile = f
	ks.cacheMap = m
	return nil
}

// flushCache writes the current BDS/state bytes and their xxhash
// checksum into the mapped cache region, then msyncs it via
// mmap.MMap.Flush — the teacher's container keeps its subtree cache
// updated by writing straight into the mapped buffer; this does the
// same for the whole traversal state rather than one subtree at a
// time, since the engine core does not expose per-subtree granularity.
func (ks *FileKeyStore) flushCache() xmssmt.Error {
	state := ks.sk.State()
	bw := byteswriter.NewWriter(ks.cacheMap[cacheFileHeaderSize:])
	if _, err := bw.Write(state); err != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "writing cache state")
	}
	sum := xxhash.Sum64(state)
	be64Into(ks.cacheMap[cacheFileHeaderSize+len(state):], sum)
	if err := ks.cacheMap.Flush(); err != nil {
		return xmssmt.WrapError(xmssmt.ErrParameters, err, "flushing cache file")
	}
	return nil
}

func (ks *FileKeyStore) closeCacheFile() error {
	var err error
	if ks.cacheMap != nil {
		if e := ks.cacheMap.Unmap(); e != nil {
			err = multierror.Append(err, e)
		}
		ks.cacheMap = nil
	}
	if ks.cacheFile != nil {
		if e := ks.cacheFile.Close(); e != nil {
			err = multierror.Append(err, e)
		}
		ks.cacheFile = nil
	}
	return err
}

// Close unmaps the cache, closes the open files, and releases the
// lockfile, aggregating any independent failures with
// hashicorp/go-multierror exactly as the teacher's fsContainer.Close
// does.
func (ks *FileKeyStore) Close() error {
	if ks.closed {
		return nil
	}
	ks.closed = true
	var err error
	if e := ks.closeCacheFile(); e != nil {
		err = multierror.Append(err, e)
	}
	if e := ks.flock.Unlock(); e != nil {
		err = multierror.Append(err, e)
	}
	return err
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func be32Into(out []byte, x uint32) {
	out[0] = byte(x >> 24)
	out[1] = byte(x >> 16)
	out[2] = byte(x >> 8)
	out[3] = byte(x)
}

func be64Into(out []byte, x uint64) {
	for i := 0; i < 8; i++ {
		out[i] = byte(x >> uint(56-8*i))
	}
}

func beUint64(in []byte) uint64 {
	var x uint64
	for i := 0; i < 8; i++ {
		x = x<<8 | uint64(in[i])
	}
	return x
}
