package asset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipestack/internal/stack"
	"github.com/vk/pipestack/internal/testutil"
)

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestPackage_ZipFileIsStagedVerbatim(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	dir := testutil.WriteReferenceStack(t)
	src := filepath.Join(dir, "java-project.zip")

	archive, err := Package(ctx, &stack.Asset{Name: "Seed", Path: src})
	require.NoError(t, err)

	raw, err := os.ReadFile(src)
	require.NoError(t, err)
	sum := sha256.Sum256(raw)

	assert.Equal(t, PackagingFile, archive.Packaging)
	assert.Equal(t, raw, archive.Data)
	assert.Equal(t, hex.EncodeToString(sum[:]), archive.Hash)
	assert.Equal(t, "asset."+archive.Hash+".zip", archive.FileName())
}

func TestPackage_DirectoryIsDeterministic(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	files := map[string]string{
		"pom.xml":                 "<project/>",
		"src/main/java/App.java":  "class App {}",
		"buildspec.yml":           "version: 0.2\n",
		"target/app.jar":          "binary",
		".git/HEAD":               "ref: refs/heads/main",
		"src/main/java/App.class": "compiled",
	}
	exclude := []string{"target", ".git", "*.class"}

	first := testutil.WriteFiles(t, files)
	second := testutil.WriteFiles(t, files)
	past := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(second, "pom.xml"), past, past))
	require.NoError(t, os.Chmod(filepath.Join(second, "buildspec.yml"), 0o600))

	a1, err := Package(ctx, &stack.Asset{Name: "Seed", Path: first, Exclude: exclude})
	require.NoError(t, err)
	a2, err := Package(ctx, &stack.Asset{Name: "Seed", Path: second, Exclude: exclude})
	require.NoError(t, err)

	assert.Equal(t, PackagingDirectory, a1.Packaging)
	assert.Equal(t, a1.Hash, a2.Hash, "timestamps and permissions must not affect the archive")
	assert.Equal(t, []string{"buildspec.yml", "pom.xml", "src/main/java/App.java"}, entryNames(t, a1.Data))
}

func TestPackage_ContentChangesHash(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	a1, err := Package(ctx, &stack.Asset{Name: "A", Path: testutil.WriteFiles(t, map[string]string{"f.txt": "one"})})
	require.NoError(t, err)
	a2, err := Package(ctx, &stack.Asset{Name: "A", Path: testutil.WriteFiles(t, map[string]string{"f.txt": "two"})})
	require.NoError(t, err)
	assert.NotEqual(t, a1.Hash, a2.Hash)
}

func TestPackage_Errors(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	dir := testutil.WriteFiles(t, map[string]string{"notes.txt": "not a zip", "empty/.keep": ""})

	_, err := Package(ctx, &stack.Asset{Name: "Missing", Path: filepath.Join(dir, "missing.zip")})
	assert.ErrorContains(t, err, `asset "Missing"`)

	_, err = Package(ctx, &stack.Asset{Name: "Text", Path: filepath.Join(dir, "notes.txt")})
	assert.ErrorContains(t, err, "is not a zip archive")

	_, err = Package(ctx, &stack.Asset{Name: "Empty", Path: filepath.Join(dir, "empty"), Exclude: []string{".keep"}})
	assert.ErrorContains(t, err, "contains no files to package")

	_, err = Package(ctx, &stack.Asset{Name: "Bad", Path: dir, Exclude: []string{"["}})
	assert.ErrorContains(t, err, `invalid exclude pattern "["`)
}

func TestArchiveStage(t *testing.T) {
	archive := &Archive{Name: "Seed", Hash: "abc", Data: []byte("zip")}
	dir := t.TempDir()

	path, err := archive.Stage(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "asset.abc.zip"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip"), got)
}
