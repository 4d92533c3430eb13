package bench

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Compress gzips src into dst with the default level and returns the size of both files
func Compress(src, dst string) (size, gzipped int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	enc := gzip.NewWriter(out)
	size, err = io.Copy(enc, bufio.NewReader(in))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := enc.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close %s: %w", dst, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	return size, info.Size(), nil
}
