package compressors

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/nexusedit/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// maxLZ4DecodedSize bounds the allocation a corrupt length prefix can cause.
const maxLZ4DecodedSize = 1 << 30

var errLZ4Length = errors.New("lz4: invalid decoded length prefix")

// LZ4Compressor uses the LZ4 block format. The block format does not record
// the decoded size, so each payload is prefixed with it as a uvarint.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.CompressTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	var prefix [binary.MaxVarintLen64]byte
	dst.Write(prefix[:binary.PutUvarint(prefix[:], uint64(len(src)))])
	if len(src) == 0 {
		return nil
	}

	block := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, block, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 || n >= len(src) {
		// Incompressible input is stored as is; a body as long as the
		// decoded size marks it.
		dst.Write(src)
		return nil
	}
	dst.Write(block[:n])
	return nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 || size > maxLZ4DecodedSize {
		return nil, errLZ4Length
	}
	body := data[n:]
	if size == 0 {
		if len(body) != 0 {
			return nil, errLZ4Length
		}
		return newBytesReadCloser(nil), nil
	}
	if uint64(len(body)) == size {
		// Stored uncompressed, see CompressTo.
		out := make([]byte, size)
		copy(out, body)
		return newBytesReadCloser(out), nil
	}

	out := make([]byte, size)
	m, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	if uint64(m) != size {
		return nil, fmt.Errorf("lz4 decompress error: got %d bytes, expected %d", m, size)
	}
	return newBytesReadCloser(out), nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
