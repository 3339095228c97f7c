// Package scaffold generates a starter stack file: an encrypted artifact
// bucket, a repository seeded from a zip asset, a build project and a
// two-stage pipeline.
package scaffold

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// FileName is the name of the generated stack file.
const FileName = "stack.hcl"

// ErrExists is returned when the stack file exists and Force is not set.
var ErrExists = errors.New("stack file already exists")

// Options controls the generated stack.
type Options struct {
	StackName      string
	RepositoryName string
	// AssetPath is the zip the repository is seeded from, relative to the
	// stack file.
	AssetPath string
	// Admin attaches AdministratorAccess to both service roles.
	Admin bool
	Force bool
}

func (o Options) withDefaults() Options {
	if o.StackName == "" {
		o.StackName = "PipelineStack"
	}
	if o.RepositoryName == "" {
		o.RepositoryName = "java-project"
	}
	if o.AssetPath == "" {
		o.AssetPath = "java-project.zip"
	}
	return o
}

// Generate renders the starter stack.
func Generate(opts Options) []byte {
	opts = opts.withDefaults()
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	stack := root.AppendNewBlock("stack", []string{opts.StackName}).Body()
	stack.SetAttributeValue("description", cty.StringVal("Automated software delivery pipeline"))
	root.AppendNewline()

	v := root.AppendNewBlock("variable", []string{"repository_name"}).Body()
	v.SetAttributeRaw("type", hclwrite.TokensForIdentifier("string"))
	v.SetAttributeValue("default", cty.StringVal(opts.RepositoryName))
	root.AppendNewline()

	root.AppendNewBlock("asset", []string{"JavaProjectZip"}).Body().
		SetAttributeValue("path", cty.StringVal(opts.AssetPath))
	root.AppendNewline()

	root.AppendNewBlock("bucket", []string{"ArtifactBucket"}).Body().
		SetAttributeValue("encryption", cty.StringVal("S3_MANAGED"))
	root.AppendNewline()

	repo := root.AppendNewBlock("repository", []string{"AppCodeCommitRepository"}).Body()
	repo.SetAttributeTraversal("repository_name", traversal("var", "repository_name"))
	repo.SetAttributeValue("description", cty.StringVal("An automated software delivery pipeline"))
	repo.SetAttributeTraversal("code", traversal("asset", "JavaProjectZip"))
	root.AppendNewline()

	appendRole(root, "AppBuildRole", "codebuild.amazonaws.com", opts.Admin)
	appendRole(root, "CodePipelineServiceRole", "codepipeline.amazonaws.com", opts.Admin)

	project := root.AppendNewBlock("project", []string{"AppBuildProject"}).Body()
	project.SetAttributeTraversal("source", traversal("repository", "AppCodeCommitRepository"))
	project.SetAttributeValue("build_image", cty.StringVal("STANDARD_5_0"))
	project.SetAttributeTraversal("role", traversal("role", "AppBuildRole"))
	project.AppendNewline()
	artifacts := project.AppendNewBlock("artifacts", nil).Body()
	artifacts.SetAttributeTraversal("bucket", traversal("bucket", "ArtifactBucket"))
	artifacts.SetAttributeValue("name", cty.StringVal("artifact.zip"))
	artifacts.SetAttributeValue("include_build_id", cty.False)
	artifacts.SetAttributeValue("package_zip", cty.True)
	root.AppendNewline()

	pipeline := root.AppendNewBlock("pipeline", []string{"AppPipeline"}).Body()
	pipeline.SetAttributeTraversal("artifact_bucket", traversal("bucket", "ArtifactBucket"))
	pipeline.SetAttributeTraversal("role", traversal("role", "CodePipelineServiceRole"))
	pipeline.AppendNewline()

	source := pipeline.AppendNewBlock("stage", []string{"Source"}).Body().
		AppendNewBlock("action", []string{"SourceAction"}).Body()
	source.SetAttributeValue("type", cty.StringVal("codecommit_source"))
	source.SetAttributeTraversal("repository", traversal("repository", "AppCodeCommitRepository"))
	source.SetAttributeValue("outputs", cty.ListVal([]cty.Value{cty.StringVal("SourceOutput")}))
	pipeline.AppendNewline()

	build := pipeline.AppendNewBlock("stage", []string{"Build"}).Body().
		AppendNewBlock("action", []string{"BuildAction"}).Body()
	build.SetAttributeValue("type", cty.StringVal("codebuild"))
	build.SetAttributeTraversal("project", traversal("project", "AppBuildProject"))
	build.SetAttributeValue("inputs", cty.ListVal([]cty.Value{cty.StringVal("SourceOutput")}))
	build.SetAttributeValue("outputs", cty.ListVal([]cty.Value{cty.StringVal("BuildOutput")}))
	root.AppendNewline()

	out := root.AppendNewBlock("output", []string{"RepositoryCloneUrl"}).Body()
	out.SetAttributeTraversal("value", traversal("repository", "AppCodeCommitRepository", "clone_url_http"))
	out.SetAttributeValue("description", cty.StringVal("HTTPS clone URL of the source repository"))

	return hclwrite.Format(f.Bytes())
}

func appendRole(root *hclwrite.Body, name, principal string, admin bool) {
	role := root.AppendNewBlock("role", []string{name}).Body()
	role.SetAttributeValue("assumed_by", cty.ListVal([]cty.Value{cty.StringVal(principal)}))
	if admin {
		role.SetAttributeValue("managed_policies", cty.ListVal([]cty.Value{cty.StringVal("AdministratorAccess")}))
	}
	root.AppendNewline()
}

func traversal(root string, attrs ...string) hcl.Traversal {
	t := hcl.Traversal{hcl.TraverseRoot{Name: root}}
	for _, a := range attrs {
		t = append(t, hcl.TraverseAttr{Name: a})
	}
	return t
}

// Write generates the starter stack into dir and returns the written path.
func Write(ctx context.Context, dir string, opts Options) (string, error) {
	logger := ctxlog.FromContext(ctx)

	path := filepath.Join(dir, FileName)
	exists, err := fsutil.Exists(path)
	if err != nil {
		return "", err
	}
	if exists && !opts.Force {
		return "", fmt.Errorf("%s: %w; use --force to overwrite", path, ErrExists)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(path, Generate(opts), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Info("Stack file written.", "path", path, "admin", opts.Admin)
	return path, nil
}
