package backup

import (
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// Compress streams r through a multi-threaded zstd encoder into w. level 0
// selects the library default (level 3); threads 0 selects
// runtime.NumCPU().
func Compress(r io.Reader, w io.Writer, level int, threads int) (int64, error) {
	if level == 0 {
		level = 3
	}
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(threads),
	)
	if err != nil {
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}

	n, err := io.Copy(enc, r)
	if err != nil {
		enc.Close()
		return n, fmt.Errorf("compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("finish zstd stream: %w", err)
	}
	return n, nil
}
