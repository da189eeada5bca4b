// Package compressors provides the block compressors a recovery bundle can
// be written with. Each one compresses a whole payload at once; none of them
// is a streaming format.
package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/INLOpen/nexusedit/core"
)

// bytesReadCloser hands out an in-memory result as an io.ReadCloser.
type bytesReadCloser struct {
	*bytes.Reader
}

func (b *bytesReadCloser) Close() error { return nil }

var _ io.ReadCloser = (*bytesReadCloser)(nil)

func newBytesReadCloser(data []byte) io.ReadCloser {
	return &bytesReadCloser{Reader: bytes.NewReader(data)}
}

// ForType returns the compressor that reads and writes payloads of type ct.
func ForType(ct core.CompressionType) (core.Compressor, error) {
	switch ct {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("unsupported compression type %d", ct)
	}
}

// ForName is ForType for a configured name such as "zstd".
func ForName(name string) (core.Compressor, error) {
	ct, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return ForType(ct)
}

// DecompressAll decompresses data in one call.
func DecompressAll(c core.Compressor, data []byte) ([]byte, error) {
	rc, err := c.Decompress(data)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
