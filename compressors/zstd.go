package compressors

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/INLOpen/nexusedit/core"
	"github.com/klauspost/compress/zstd"
)

// zstdMaxDecoderMemory caps what a single bundle may decode to.
const zstdMaxDecoderMemory = 1 << 30

// ZstdCompressor uses Zstandard with pooled encoders and decoders. Both run
// with a concurrency of one so they own no background goroutines and a coder
// dropped by sync.Pool needs no Close.
type ZstdCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

type zstdReadCloser struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (zrc *zstdReadCloser) Close() error {
	// Decoder.Close would make the decoder unusable, so it goes back to the pool.
	zrc.pool.Put(zrc.Decoder)
	return nil
}

var _ core.Compressor = (*ZstdCompressor)(nil)
var _ io.ReadCloser = (*zstdReadCloser)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (c *ZstdCompressor) encoder() (*zstd.Encoder, error) {
	if enc, ok := c.encoderPool.Get().(*zstd.Encoder); ok {
		return enc, nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
}

func (c *ZstdCompressor) decoder() (*zstd.Decoder, error) {
	if dec, ok := c.decoderPool.Get().(*zstd.Decoder); ok {
		return dec, nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(zstdMaxDecoderMemory))
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)

	if err := c.CompressTo(buf, data); err != nil {
		return nil, err
	}
	// buf goes back to the pool, so the result must be copied out.
	compressed := make([]byte, buf.Len())
	copy(compressed, buf.Bytes())
	return compressed, nil
}

func (c *ZstdCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	enc, err := c.encoder()
	if err != nil {
		return fmt.Errorf("zstd encoder error: %w", err)
	}
	defer c.encoderPool.Put(enc)

	dst.Reset()
	enc.Reset(dst)
	if _, err := enc.Write(src); err != nil {
		_ = enc.Close()
		return fmt.Errorf("zstd compress write error: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd compress close error: %w", err)
	}
	return nil
}

func (c *ZstdCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	dec, err := c.decoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder error: %w", err)
	}
	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		c.decoderPool.Put(dec)
		return nil, fmt.Errorf("zstd decoder reset error: %w", err)
	}
	return &zstdReadCloser{Decoder: dec, pool: &c.decoderPool}, nil
}

func (c *ZstdCompressor) Type() core.CompressionType {
	return core.CompressionZSTD
}
