// Package generictile implements the self-describing, length-prefixed
// tile format every fragment metadata section is persisted as:
// [header(version, filters, uncompressed_size, persisted_size,
// checksum), filtered_bytes], using a fixed-width header idiom and a
// single reused zstd encoder.
package generictile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/wire"
	"golang.org/x/crypto/hkdf"
)

// Key is the caller-supplied encryption key material for a filter
// pipeline that includes FilterAES256GCM. The AES-256 key is derived
// from it via HKDF-SHA256 and is the same for every tile sealed under
// one master key; each tile gets a fresh random GCM nonce.
type Key []byte

// Tile is an in-memory, fully decoded generic tile: a contiguous byte
// buffer plus the filter pipeline it was (or will be) written with.
type Tile struct {
	Filters []shared.FilterKind
	Data    []byte
}

const headerMagicSize = 4
const headerFixedSize = shared.GenericTileHeaderSize

var encoderPool = newZstdCodec()

type zstdCodec struct {
	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return &zstdCodec{enc: enc, dec: dec}
}

func (z *zstdCodec) compress(dst, src []byte) []byte {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.enc.EncodeAll(src, dst)
}

func (z *zstdCodec) decompress(dst, src []byte) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.dec.DecodeAll(src, dst)
}

// WriteGeneric filters (compresses/encrypts, per tile.Filters, in
// order) and serializes tile, appending the result to dst. It returns
// the extended buffer and the number of bytes the persisted blob
// consumed (header + filtered payload).
func WriteGeneric(dst []byte, tile Tile, key Key) ([]byte, int, error) {
	payload := tile.Data
	for _, f := range tile.Filters {
		var err error
		payload, err = applyFilter(f, payload, key)
		if err != nil {
			return nil, 0, err
		}
	}

	enc := wire.NewEncoder(headerFixedSize + len(payload))
	enc.PutUint32(shared.GenericTileMagic)
	enc.PutUint8(1) // tile format version
	var filterByte uint8
	for _, f := range tile.Filters {
		filterByte |= 1 << uint(f)
	}
	enc.PutUint8(filterByte)
	enc.PutUint64(uint64(len(tile.Data)))
	enc.PutUint64(uint64(len(payload)))
	enc.PutUint32(crc32.ChecksumIEEE(payload))
	enc.PutBytes(payload)

	out := append(dst, enc.Bytes()...)
	return out, enc.Len(), nil
}

// ReadGeneric decodes one generic tile starting at the beginning of
// buf (buf may contain trailing bytes belonging to the next tile).
// It returns the decoded Tile and the number of bytes consumed.
func ReadGeneric(buf []byte, key Key) (Tile, int, error) {
	c := wire.NewCursor(buf)
	magic, err := c.GetUint32()
	if err != nil {
		return Tile{}, 0, err
	}
	if magic != shared.GenericTileMagic {
		return Tile{}, 0, errs.New(errs.Corrupt, "generictile: bad magic %08x", magic)
	}
	version, err := c.GetUint8()
	if err != nil {
		return Tile{}, 0, err
	}
	if version != 1 {
		return Tile{}, 0, errs.New(errs.FormatVersionUnsupported, "generictile: unsupported tile format version %d", version)
	}
	filterByte, err := c.GetUint8()
	if err != nil {
		return Tile{}, 0, err
	}
	uncompressedSize, err := c.GetUint64()
	if err != nil {
		return Tile{}, 0, err
	}
	persistedSize, err := c.GetUint64()
	if err != nil {
		return Tile{}, 0, err
	}
	checksum, err := c.GetUint32()
	if err != nil {
		return Tile{}, 0, err
	}
	payload, err := c.GetBytes(int(persistedSize))
	if err != nil {
		return Tile{}, 0, err
	}
	if crc32.ChecksumIEEE(payload) != checksum {
		return Tile{}, 0, errs.New(errs.Corrupt, "generictile: checksum mismatch")
	}

	filters := decodeFilters(filterByte)
	data := append([]byte(nil), payload...)
	for i := len(filters) - 1; i >= 0; i-- {
		var err error
		data, err = unapplyFilter(filters[i], data, key)
		if err != nil {
			return Tile{}, 0, err
		}
	}
	if uint64(len(data)) != uncompressedSize {
		return Tile{}, 0, errs.New(errs.Corrupt, "generictile: decoded size %d != header size %d", len(data), uncompressedSize)
	}
	return Tile{Filters: filters, Data: data}, c.Pos(), nil
}

func decodeFilters(b uint8) []shared.FilterKind {
	var out []shared.FilterKind
	for f := shared.FilterKind(0); f < 8; f++ {
		if b&(1<<uint(f)) != 0 {
			out = append(out, f)
		}
	}
	return out
}

func applyFilter(f shared.FilterKind, data []byte, key Key) ([]byte, error) {
	switch f {
	case shared.FilterNone:
		return data, nil
	case shared.FilterZstd:
		return encoderPool.compress(nil, data), nil
	case shared.FilterAES256GCM:
		return encrypt(data, key)
	default:
		return nil, errs.New(errs.UsageError, "generictile: unknown filter kind %d", f)
	}
}

func unapplyFilter(f shared.FilterKind, data []byte, key Key) ([]byte, error) {
	switch f {
	case shared.FilterNone:
		return data, nil
	case shared.FilterZstd:
		out, err := encoderPool.decompress(nil, data)
		if err != nil {
			return nil, errs.Wrap(errs.Corrupt, err, "generictile: zstd decompress")
		}
		return out, nil
	case shared.FilterAES256GCM:
		return decrypt(data, key)
	default:
		return nil, errs.New(errs.UsageError, "generictile: unknown filter kind %d", f)
	}
}

// deriveKey runs HKDF-SHA256 over master to produce a 32-byte AES-256 key.
func deriveKey(master Key) ([]byte, error) {
	if len(master) == 0 {
		return nil, errs.New(errs.UsageError, "generictile: AES256GCM filter requires a key")
	}
	out := make([]byte, 32)
	kdf := hkdf.New(sha256.New, master, nil, []byte("fragcore-generic-tile"))
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, errs.Wrap(errs.Decrypt, err, "generictile: key derivation")
	}
	return out, nil
}

func encrypt(plaintext []byte, key Key) ([]byte, error) {
	k, err := deriveKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, errs.Wrap(errs.Decrypt, err, "generictile: aes cipher init")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.Decrypt, err, "generictile: gcm init")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.Decrypt, err, "generictile: nonce generation")
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext []byte, key Key) ([]byte, error) {
	k, err := deriveKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, errs.Wrap(errs.Decrypt, err, "generictile: aes cipher init")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.Decrypt, err, "generictile: gcm init")
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errs.New(errs.Truncated, "generictile: ciphertext shorter than nonce")
	}
	nonce, ct := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	out, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Decrypt, err, "generictile: gcm open")
	}
	return out, nil
}
