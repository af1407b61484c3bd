// Package compress provides the codecs used when zone data leaves hot
// memory: fast symmetric compression for warm snapshots and higher-ratio
// compression for cold storage, selected per tier or per material type.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses whole buffers. Implementations are
// safe for concurrent use.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// Codec names accepted by Lookup and configuration files.
const (
	CodecNone = "none"
	CodecS2   = "s2"
	CodecZstd = "zstd"
	CodecGzip = "gzip"
)

type noneCodec struct{}

func (noneCodec) Name() string { return CodecNone }

func (noneCodec) Compress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (noneCodec) Decompress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

type s2Codec struct{}

func (s2Codec) Name() string { return CodecS2 }

func (s2Codec) Compress(src []byte) ([]byte, error) {
	return s2.Encode(nil, src), nil
}

func (s2Codec) Decompress(src []byte) ([]byte, error) {
	out, err := s2.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("s2 decode: %w", err)
	}
	return out, nil
}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec(level zstd.EncoderLevel) (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (zstdCodec) Name() string { return CodecZstd }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

type gzipCodec struct {
	level int
}

func (gzipCodec) Name() string { return CodecGzip }

func (c gzipCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

var (
	codecMu     sync.Mutex
	codecCache  = map[string]Codec{}
	zstdLevels  = map[int]zstd.EncoderLevel{}
	levelBounds = map[string][2]int{
		CodecZstd: {1, 4},
		CodecGzip: {gzip.BestSpeed, gzip.BestCompression},
	}
)

func init() {
	zstdLevels[1] = zstd.SpeedFastest
	zstdLevels[2] = zstd.SpeedDefault
	zstdLevels[3] = zstd.SpeedBetterCompression
	zstdLevels[4] = zstd.SpeedBestCompression
}

// Lookup returns the named codec at the given level, clamping the level
// to the codec's supported range. Codec instances are cached and shared.
func Lookup(name string, level int) (Codec, error) {
	if bounds, ok := levelBounds[name]; ok {
		if level < bounds[0] {
			level = bounds[0]
		}
		if level > bounds[1] {
			level = bounds[1]
		}
	} else {
		level = 0
	}

	key := fmt.Sprintf("%s:%d", name, level)
	codecMu.Lock()
	defer codecMu.Unlock()
	if c, ok := codecCache[key]; ok {
		return c, nil
	}

	var c Codec
	switch name {
	case CodecNone:
		c = noneCodec{}
	case CodecS2:
		c = s2Codec{}
	case CodecZstd:
		zc, err := newZstdCodec(zstdLevels[level])
		if err != nil {
			return nil, err
		}
		c = zc
	case CodecGzip:
		c = gzipCodec{level: level}
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	codecCache[key] = c
	return c, nil
}

// Names returns the supported codec names, sorted.
func Names() []string {
	names := []string{CodecNone, CodecS2, CodecZstd, CodecGzip}
	sort.Strings(names)
	return names
}
