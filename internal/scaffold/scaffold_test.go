package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipestack/internal/builder"
	"github.com/vk/pipestack/internal/hcl_adapter"
	"github.com/vk/pipestack/internal/testutil"
	"github.com/vk/pipestack/internal/validate"
)

func TestGenerate_LoadsAndValidates(t *testing.T) {
	testCases := []struct {
		name     string
		admin    bool
		warnings int
	}{
		{name: "least privilege", admin: false, warnings: 0},
		{name: "admin", admin: true, warnings: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.NewContext(t)
			dir := testutil.WriteFiles(t, map[string]string{FileName: string(Generate(Options{Admin: tc.admin}))})

			model, err := hcl_adapter.NewLoader().Load(ctx, dir)
			require.NoError(t, err)
			st, _, err := builder.Build(ctx, model)
			require.NoError(t, err)

			assert.Equal(t, "PipelineStack", st.Name)
			assert.Equal(t, "java-project", st.Repositories[0].RepositoryName)
			assert.Equal(t, filepath.Join(dir, "java-project.zip"), st.Assets[0].Path)
			require.Len(t, st.Roles, 2)
			for _, r := range st.Roles {
				assert.Equal(t, tc.admin, r.HasManagedPolicy("AdministratorAccess"), r.Name)
			}

			report := validate.Validate(ctx, st)
			assert.False(t, report.HasErrors(), "unexpected errors: %v", report.Errors())
			assert.Len(t, report.Warnings(), tc.warnings)
		})
	}
}

func TestGenerate_Options(t *testing.T) {
	out := string(Generate(Options{StackName: "Mine", RepositoryName: "svc", AssetPath: "seed/svc.zip"}))
	assert.Contains(t, out, `stack "Mine" {`)
	assert.Contains(t, out, `default = "svc"`)
	assert.Contains(t, out, `path = "seed/svc.zip"`)
	assert.Contains(t, out, "repository_name = var.repository_name")
	assert.Contains(t, out, "value       = repository.AppCodeCommitRepository.clone_url_http")
	assert.NotContains(t, out, "AdministratorAccess")
}

func TestWrite(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	dir := filepath.Join(t.TempDir(), "new")

	path, err := Write(ctx, dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = Write(ctx, dir, Options{Admin: true})
	assert.ErrorIs(t, err, ErrExists)

	_, err = Write(ctx, dir, Options{Admin: true, Force: true})
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Contains(t, string(second), "AdministratorAccess")
}
