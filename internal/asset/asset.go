// Package asset packages local assets into the zip archives shipped with a
// cloud assembly.
package asset

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/stack"
)

// Packaging describes how the archive was produced.
type Packaging string

const (
	// PackagingFile is a zip archive staged as-is.
	PackagingFile Packaging = "file"
	// PackagingDirectory is a directory zipped by Package.
	PackagingDirectory Packaging = "directory"
)

// fileMode is stored for every entry so archives do not depend on the
// permissions of the checkout.
const fileMode = 0o644

// Archive is a packaged asset.
type Archive struct {
	Name      string
	Source    string
	Packaging Packaging
	// Hash is the sha256 hex digest of Data.
	Hash string
	Data []byte
}

// FileName is the name the archive is staged under.
func (a *Archive) FileName() string {
	return "asset." + a.Hash + ".zip"
}

// Stage writes the archive into dir and returns the written path.
func (a *Archive) Stage(dir string) (string, error) {
	dst := filepath.Join(dir, a.FileName())
	if err := os.WriteFile(dst, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage asset %q: %w", a.Name, err)
	}
	return dst, nil
}

// Package produces the archive of an asset. A zip file is taken verbatim; a
// directory is zipped deterministically: entries are sorted, carry no
// timestamps and have a fixed mode, and paths matching an exclude pattern are
// skipped.
func Package(ctx context.Context, a *stack.Asset) (*Archive, error) {
	logger := ctxlog.FromContext(ctx).With("asset", a.Name, "path", a.Path)

	info, err := os.Stat(a.Path)
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", a.Name, err)
	}

	archive := &Archive{Name: a.Name, Source: a.Path}
	if info.IsDir() {
		archive.Packaging = PackagingDirectory
		archive.Data, err = zipDirectory(a.Path, a.Exclude)
	} else {
		archive.Packaging = PackagingFile
		archive.Data, err = readZipFile(a.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", a.Name, err)
	}

	sum := sha256.Sum256(archive.Data)
	archive.Hash = hex.EncodeToString(sum[:])
	logger.Debug("Asset packaged.", "packaging", archive.Packaging, "hash", archive.Hash, "bytes", len(archive.Data))
	return archive, nil
}

func readZipFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("%s is not a zip archive; use a zip file or a directory: %w", p, err)
	}
	return data, nil
}

func zipDirectory(root string, exclude []string) ([]byte, error) {
	for _, pattern := range exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	var names []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			names = append(names, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("directory %s contains no files to package", root)
	}
	sort.Strings(names)

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	defer func() { _ = zw.Close() }() // cleanup for early exits

	for _, name := range names {
		fh := zip.FileHeader{Name: name, Method: zip.Deflate}
		fh.SetMode(fileMode)
		dst, err := zw.CreateHeader(&fh)
		if err != nil {
			return nil, fmt.Errorf("writing zip entry header for %q: %w", name, err)
		}
		if err := copyFile(dst, filepath.Join(root, filepath.FromSlash(name))); err != nil {
			return nil, fmt.Errorf("failed to write %q: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing the zip archive: %w", err)
	}
	return out.Bytes(), nil
}

// excluded matches a slash-separated relative path, and each of its
// components, against the patterns.
func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func copyFile(dst io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}
