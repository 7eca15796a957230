// Package archive packages a session's compressed outputs for download.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteZip streams every regular file directly inside dir into a deflated
// ZIP written to w, and returns the number of files added.
func WriteZip(w io.Writer, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}

	zw := zip.NewWriter(w)
	count := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := addFile(zw, dir, entry); err != nil {
			zw.Close()
			return count, err
		}
		count++
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("close zip: %w", err)
	}
	return count, nil
}

func addFile(zw *zip.Writer, dir string, entry os.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return fmt.Errorf("stat %s: %w", entry.Name(), err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", entry.Name(), err)
	}
	header.Name = entry.Name()
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", entry.Name(), err)
	}
	src, err := os.Open(filepath.Join(dir, entry.Name()))
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name(), err)
	}
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s: %w", entry.Name(), err)
	}
	return nil
}
