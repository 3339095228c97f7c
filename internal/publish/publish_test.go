package publish

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipestack/internal/asset"
	"github.com/vk/pipestack/internal/builder"
	"github.com/vk/pipestack/internal/hcl_adapter"
	"github.com/vk/pipestack/internal/synth"
	"github.com/vk/pipestack/internal/testutil"
)

// store is a fake object store recording PUT bodies by path.
type store struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	failures int
	status   int
}

func newStore() *store {
	return &store{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.failures > 0 {
		s.failures--
		w.WriteHeader(s.status)
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.objects[r.URL.Path] = body
	s.types[r.URL.Path] = r.Header.Get("Content-Type")
	w.WriteHeader(http.StatusOK)
}

func fastRetries() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPublish(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	s := newStore()
	srv := httptest.NewServer(s)
	defer srv.Close()

	uploads := []Upload{
		{File: writeFile(t, "first"), ObjectKey: "a.zip", URL: srv.URL + "/a.zip"},
		{File: writeFile(t, "second"), ObjectKey: "b.zip", URL: srv.URL + "/b.zip"},
	}
	results, err := New(WithBackOff(fastRetries)).Publish(ctx, uploads)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, Result{ObjectKey: "a.zip", Status: "200 OK", Size: 5, Attempts: 1}, results[0])
	assert.Equal(t, "first", string(s.objects["/a.zip"]))
	assert.Equal(t, "second", string(s.objects["/b.zip"]))
	assert.NotEmpty(t, s.types["/a.zip"])
}

func TestPublish_RetriesServerErrors(t *testing.T) {
	ctx, logs := testutil.NewContext(t)
	s := newStore()
	s.failures, s.status = 2, http.StatusServiceUnavailable
	srv := httptest.NewServer(s)
	defer srv.Close()

	results, err := New(WithBackOff(fastRetries)).Publish(ctx, []Upload{
		{File: writeFile(t, "data"), ObjectKey: "a.zip", URL: srv.URL + "/a.zip"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, "data", string(s.objects["/a.zip"]))
	assert.Contains(t, logs.String(), "Upload failed, retrying.")
}

func TestPublish_ClientErrorsAreNotRetried(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	s := newStore()
	s.failures, s.status = 10, http.StatusForbidden
	srv := httptest.NewServer(s)
	defer srv.Close()

	_, err := New(WithBackOff(fastRetries)).Publish(ctx, []Upload{
		{File: writeFile(t, "data"), ObjectKey: "a.zip", URL: srv.URL + "/a.zip"},
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, 9, s.failures, "a 4xx answer is final")
}

func TestPublish_GivesUp(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	s := newStore()
	s.failures, s.status = 10, http.StatusInternalServerError
	srv := httptest.NewServer(s)
	defer srv.Close()

	results, err := New(WithBackOff(fastRetries)).Publish(ctx, []Upload{
		{File: writeFile(t, "data"), ObjectKey: "a.zip", URL: srv.URL + "/a.zip"},
		{File: writeFile(t, "more"), ObjectKey: "b.zip", URL: srv.URL + "/b.zip"},
	})
	assert.ErrorContains(t, err, "upload of a.zip failed with status: 500")
	assert.Empty(t, results)
	assert.Equal(t, 6, s.failures, "one attempt and three retries")
	assert.Empty(t, s.objects)
}

func TestPublish_MissingFile(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	_, err := New(WithBackOff(fastRetries)).Publish(ctx, []Upload{
		{File: filepath.Join(t.TempDir(), "gone.zip"), ObjectKey: "gone.zip", URL: "http://127.0.0.1:1/gone.zip"},
	})
	assert.ErrorContains(t, err, "failed to open")
}

// writeAssembly synthesizes the reference stack and returns the assembly
// directory with the object keys of the code asset and the template.
func writeAssembly(t *testing.T) (dir, codeKey, templateKey string) {
	t.Helper()
	ctx, _ := testutil.NewContext(t)
	model, err := hcl_adapter.NewLoader().Load(ctx, testutil.WriteReferenceStack(t))
	require.NoError(t, err)
	st, _, err := builder.Build(ctx, model)
	require.NoError(t, err)
	archive, err := asset.Package(ctx, st.Assets[0])
	require.NoError(t, err)

	dir = t.TempDir()
	d, err := synth.Define(ctx, st, map[string]*asset.Archive{archive.Name: archive}, dir)
	require.NoError(t, err)
	_, err = d.Synth(ctx, synth.FormatJSON)
	require.NoError(t, err)

	manifests, err := synth.ReadAssetManifests(dir)
	require.NoError(t, err)
	for hash, f := range manifests["FinalStack.assets"].Files {
		for _, dest := range f.Destinations {
			if hash == archive.Hash {
				codeKey = dest.ObjectKey
			} else {
				templateKey = dest.ObjectKey
			}
		}
	}
	require.NotEmpty(t, codeKey)
	require.NotEmpty(t, templateKey)
	return dir, codeKey, templateKey
}

func TestPlan(t *testing.T) {
	dir, codeKey, tmplKey := writeAssembly(t)

	uploads, err := Plan(dir, map[string]string{
		codeKey: "http://store/seed",
		tmplKey: "http://store/template",
	})
	require.NoError(t, err)
	require.Len(t, uploads, 2)

	byKey := map[string]Upload{}
	for _, u := range uploads {
		byKey[u.ObjectKey] = u
	}
	assert.Equal(t, "http://store/seed", byKey[codeKey].URL)
	assert.FileExists(t, byKey[codeKey].File)
	assert.Equal(t, ".zip", filepath.Ext(byKey[codeKey].File))
	assert.NotEmpty(t, byKey[codeKey].Name)
	assert.Equal(t, filepath.Join(dir, "FinalStack.template.json"), byKey[tmplKey].File)

	t.Run("missing URL", func(t *testing.T) {
		_, err := Plan(dir, map[string]string{codeKey: "http://store/seed"})
		assert.ErrorContains(t, err, "no upload URL given for "+tmplKey)
	})

	t.Run("unknown object", func(t *testing.T) {
		_, err := Plan(dir, map[string]string{
			codeKey:     "http://store/seed",
			tmplKey:     "http://store/template",
			"other.zip": "http://store/other",
		})
		assert.ErrorContains(t, err, `unknown object "other.zip"`)
	})

	t.Run("not an assembly", func(t *testing.T) {
		_, err := Plan(t.TempDir(), nil)
		assert.ErrorContains(t, err, "failed to read assembly")
	})
}

func TestParseURLs(t *testing.T) {
	got, err := ParseURLs([]string{"a.zip=https://bucket/a?X-Amz-Signature=abc=="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.zip": "https://bucket/a?X-Amz-Signature=abc=="}, got)

	_, err = ParseURLs([]string{"a.zip"})
	assert.ErrorContains(t, err, "expected objectKey=url")
}
