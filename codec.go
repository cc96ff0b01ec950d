// Value serialization for blobs and for the schema catalogue itself.
package lattice

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Codec encodes and decodes arbitrary values for storage as blobs.
// Implementations must be safe for concurrent use by multiple
// goroutines reading the same file.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec is the default blob Codec and is also used to marshal the
// schema catalogue. It wraps goccy/go-json, a drop-in encoding/json
// replacement, rather than the standard library implementation.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// CompressedCodec wraps another Codec and zstd-compresses its output.
// Use it via NewCompressedCodec, which builds and caches the
// zstd encoder/decoder pair.
type CompressedCodec struct {
	inner Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
	mu    sync.Mutex
}

// NewCompressedCodec wraps inner with zstd compression. inner
// defaults to JSONCodec{} if nil.
func NewCompressedCodec(inner Codec) (*CompressedCodec, error) {
	if inner == nil {
		inner = JSONCodec{}
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("lattice: build zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("lattice: build zstd decoder: %w", err)
	}
	return &CompressedCodec{inner: inner, enc: enc, dec: dec}, nil
}

func (c *CompressedCodec) Encode(v any) ([]byte, error) {
	raw, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.EncodeAll(raw, nil), nil
}

func (c *CompressedCodec) Decode(data []byte, v any) error {
	c.mu.Lock()
	raw, err := c.dec.DecodeAll(data, nil)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("lattice: zstd decode: %w", err)
	}
	return c.inner.Decode(raw, v)
}

// Close releases the encoder/decoder's background resources. Safe to
// call on a nil receiver.
func (c *CompressedCodec) Close() {
	if c == nil {
		return
	}
	c.enc.Close()
	c.dec.Close()
}
