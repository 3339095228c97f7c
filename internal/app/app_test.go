package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipestack/internal/hcl_adapter"
	"github.com/vk/pipestack/internal/scaffold"
	"github.com/vk/pipestack/internal/synth"
	"github.com/vk/pipestack/internal/testutil"
	"github.com/vk/pipestack/internal/validate"
	"gopkg.in/yaml.v3"
)

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, cfg.StackPaths)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)

	cfg, err = NewConfig(Config{LogFormat: "JSON", LogLevel: "Debug"})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = NewConfig(Config{LogFormat: "xml"})
	assert.ErrorContains(t, err, "invalid log-format")
	_, err = NewConfig(Config{LogLevel: "loud"})
	assert.ErrorContains(t, err, "invalid log-level")
	_, err = NewConfig(Config{StackPaths: []string{" "}})
	assert.ErrorContains(t, err, "stack path cannot be empty")
}

func TestNewLogger(t *testing.T) {
	buf := &testutil.SafeBuffer{}
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestValidate(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		a, out, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
		report, err := a.Validate(context.Background(), OutputTable)
		require.NoError(t, err)
		assert.Len(t, report.Warnings(), 2)
		assert.Contains(t, out.String(), "admin-access")
		assert.Contains(t, out.String(), `role "AppBuildRole"`)
	})

	t.Run("yaml", func(t *testing.T) {
		a, out, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
		_, err := a.Validate(context.Background(), OutputYAML)
		require.NoError(t, err)

		var decoded validate.Report
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
		require.Len(t, decoded.Findings, 2)
		assert.Equal(t, validate.SeverityWarning, decoded.Findings[0].Severity)
	})

	t.Run("errors fail the command", func(t *testing.T) {
		hcl := strings.Replace(testutil.ReferenceStackHCL, `encryption = "S3_MANAGED"`, `encryption = "UNENCRYPTED"`, 1)
		a, out, _ := SetupAppTest(t, testutil.WriteStack(t, hcl))
		report, err := a.Validate(context.Background(), OutputJSON)
		require.Error(t, err)
		assert.True(t, report.HasErrors())
		assert.ErrorContains(t, err, "artifact-encryption")
		assert.Contains(t, out.String(), `"rule": "artifact-encryption"`)
	})

	t.Run("clean stack", func(t *testing.T) {
		dir := testutil.WriteStack(t, string(scaffold.Generate(scaffold.Options{})))
		a, out, _ := SetupAppTest(t, dir)
		_, err := a.Validate(context.Background(), OutputTable)
		require.NoError(t, err)
		assert.Equal(t, "No findings.\n", out.String())
	})
}

func TestList(t *testing.T) {
	a, out, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
	infos, err := a.List(context.Background(), OutputTable)
	require.NoError(t, err)

	require.Len(t, infos, 7)
	assert.Equal(t, "asset.JavaProjectZip", infos[0].ID)
	last := infos[len(infos)-1]
	assert.Equal(t, "pipeline", last.Kind)
	assert.Equal(t, "AppPipelineD5FE1B37", last.LogicalID)
	assert.Contains(t, last.DependsOn, "bucket.ArtifactBucket")
	assert.Contains(t, out.String(), "ArtifactBucket7410C9EF")
}

func TestList_JSON(t *testing.T) {
	a, out, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
	_, err := a.List(context.Background(), OutputJSON)
	require.NoError(t, err)

	var decoded []ResourceInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded, 7)
}

func TestGraph(t *testing.T) {
	t.Run("order", func(t *testing.T) {
		a, out, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
		require.NoError(t, a.Graph(context.Background(), false))
		text := out.String()
		assert.Contains(t, text, "Stack FinalStack: 7 resources in 4 levels")
		assert.Contains(t, text, "level 0: asset.JavaProjectZip, bucket.ArtifactBucket, role.AppBuildRole, role.CodePipelineServiceRole")
		assert.Contains(t, text, "7. pipeline.AppPipeline")
	})

	t.Run("dot", func(t *testing.T) {
		a, out, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
		require.NoError(t, a.Graph(context.Background(), true))
		assert.Contains(t, out.String(), `digraph "FinalStack" {`)
		assert.Contains(t, out.String(), `"project.AppBuildProject" -> "pipeline.AppPipeline";`)
	})
}

func TestSynth(t *testing.T) {
	a, out, logs := SetupAppTest(t, testutil.WriteReferenceStack(t))
	dir := filepath.Join(t.TempDir(), "stack.out")

	asm, err := a.Synth(context.Background(), SynthOptions{OutDir: dir, Format: synth.FormatYAML})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "FinalStack.template.yaml"))
	assert.FileExists(t, filepath.Join(dir, synth.ManifestFile))
	require.Len(t, asm.AssetFiles, 1)
	assert.FileExists(t, filepath.Join(dir, asm.AssetFiles[0]))

	assert.Contains(t, out.String(), "Synthesized FinalStack: ")
	assert.Contains(t, logs.String(), "Validation warning.")
}

func TestSynth_StopsOnValidationErrors(t *testing.T) {
	hcl := strings.Replace(testutil.ReferenceStackHCL, `assumed_by       = ["codebuild.amazonaws.com"]`, `assumed_by       = ["ec2.amazonaws.com"]`, 1)
	a, _, _ := SetupAppTest(t, testutil.WriteStack(t, hcl))
	dir := filepath.Join(t.TempDir(), "stack.out")

	_, err := a.Synth(context.Background(), SynthOptions{OutDir: dir})
	assert.ErrorContains(t, err, "role-trust")
	assert.NoDirExists(t, dir)
}

func TestLoad_VariableOverride(t *testing.T) {
	a, _, _ := SetupAppTest(t, testutil.WriteReferenceStack(t), hcl_adapter.WithVariables(map[string]string{"repository_name": "other"}))
	st, _, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other", st.Repositories[0].RepositoryName)
}

func TestLoad_Error(t *testing.T) {
	a, _, _ := SetupAppTest(t, testutil.WriteFiles(t, map[string]string{"main.hcl": `bucket "A" {`}))
	_, _, err := a.Load(context.Background())
	assert.ErrorContains(t, err, "failed to load configuration")
}

func TestPublish(t *testing.T) {
	var mu sync.Mutex
	received := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		received[r.URL.Path]++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, out, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
	dir := filepath.Join(t.TempDir(), "stack.out")
	_, err := a.Synth(context.Background(), SynthOptions{OutDir: dir})
	require.NoError(t, err)

	manifests, err := synth.ReadAssetManifests(dir)
	require.NoError(t, err)
	var keys []string
	for _, f := range manifests["FinalStack.assets"].Files {
		for _, d := range f.Destinations {
			keys = append(keys, d.ObjectKey)
		}
	}
	require.Len(t, keys, 2)

	urlsFile := filepath.Join(t.TempDir(), "urls.yaml")
	require.NoError(t, os.WriteFile(urlsFile, []byte(keys[0]+": "+srv.URL+"/first\n"), 0o644))

	results, err := a.Publish(context.Background(), PublishOptions{
		AssemblyDir: dir,
		URLs:        map[string]string{keys[1]: srv.URL + "/second"},
		URLsFile:    urlsFile,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, map[string]int{"/first": 1, "/second": 1}, received)
	assert.Contains(t, out.String(), "200 OK")
}

func TestPublish_MissingURLs(t *testing.T) {
	a, _, _ := SetupAppTest(t, testutil.WriteReferenceStack(t))
	dir := filepath.Join(t.TempDir(), "stack.out")
	_, err := a.Synth(context.Background(), SynthOptions{OutDir: dir})
	require.NoError(t, err)

	_, err = a.Publish(context.Background(), PublishOptions{AssemblyDir: dir})
	assert.ErrorContains(t, err, "no upload URL given")
}

func TestInit(t *testing.T) {
	a, out, _ := SetupAppTest(t, t.TempDir())
	dir := t.TempDir()

	path, err := a.Init(context.Background(), dir, scaffold.Options{StackName: "Started"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, scaffold.FileName), path)
	assert.Contains(t, out.String(), "Created "+path)
}
