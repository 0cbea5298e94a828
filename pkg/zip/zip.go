// Package zip bundles generated images into a single archive download.
package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// File is one archive member.
type File struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// Archive writes files into an in-memory zip. Names are flattened to their
// base and repeated names get a numeric suffix.
func Archive(files []File) ([]byte, error) {
	if len(files) == 0 {
		return nil, errors.New("zip: no files")
	}
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	used := make(map[string]int, len(files))
	for _, f := range files {
		name := uniqueName(path.Base(strings.ReplaceAll(f.Name, "\\", "/")), used)
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: f.Modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("zip: add %s: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueName(name string, used map[string]int) string {
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
