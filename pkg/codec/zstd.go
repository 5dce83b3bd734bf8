package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// MaxDecompressedSize bounds the output of Decompress
const MaxDecompressedSize = 256 << 20

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func initZstd() {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}

		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	})
}

// Compress compresses data with zstd
func Compress(data []byte) ([]byte, error) {
	if initZstd(); zstdErr != nil {
		return nil, errors.Wrap(zstdErr, "failed to initialize zstd")
	}

	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress decompresses a zstd frame
func Decompress(data []byte) ([]byte, error) {
	if initZstd(); zstdErr != nil {
		return nil, errors.Wrap(zstdErr, "failed to initialize zstd")
	}

	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompression failed")
	}

	return out, nil
}
