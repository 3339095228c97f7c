package hcl_adapter

import (
	"github.com/hashicorp/hcl/v2"
)

// rootSchema lists every block allowed at the top level of a stack file.
var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "stack", LabelNames: []string{"name"}},
		{Type: "variable", LabelNames: []string{"name"}},
		{Type: "asset", LabelNames: []string{"name"}},
		{Type: "bucket", LabelNames: []string{"name"}},
		{Type: "repository", LabelNames: []string{"name"}},
		{Type: "role", LabelNames: []string{"name"}},
		{Type: "project", LabelNames: []string{"name"}},
		{Type: "pipeline", LabelNames: []string{"name"}},
		{Type: "output", LabelNames: []string{"name"}},
	},
}

// variableOnlySchema is used for the first pass, which only collects variables.
var variableOnlySchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "variable", LabelNames: []string{"name"}},
	},
}

var projectNestedSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "artifacts"},
	},
}

var pipelineNestedSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "stage", LabelNames: []string{"name"}},
	},
}

var stageSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "action", LabelNames: []string{"name"}},
	},
}

// stackBlock is the body of a `stack` block.
type stackBlock struct {
	Description string            `hcl:"description,optional"`
	Account     string            `hcl:"account,optional"`
	Region      string            `hcl:"region,optional"`
	Qualifier   string            `hcl:"qualifier,optional"`
	Tags        map[string]string `hcl:"tags,optional"`
}

// variableBlock is the body of a `variable` block. Type and default are kept
// as expressions because they are evaluated without an eval context.
type variableBlock struct {
	Type        hcl.Expression `hcl:"type,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
	Description string         `hcl:"description,optional"`
}

type assetBlock struct {
	Path    string   `hcl:"path"`
	Exclude []string `hcl:"exclude,optional"`
}

type bucketBlock struct {
	BucketName    string `hcl:"bucket_name,optional"`
	Encryption    string `hcl:"encryption,optional"`
	Versioned     bool   `hcl:"versioned,optional"`
	RemovalPolicy string `hcl:"removal_policy,optional"`
}

type repositoryBlock struct {
	RepositoryName string         `hcl:"repository_name"`
	Description    string         `hcl:"description,optional"`
	Code           hcl.Expression `hcl:"code,optional"`
	Branch         string         `hcl:"branch,optional"`
}

type roleBlock struct {
	Description     string   `hcl:"description,optional"`
	AssumedBy       []string `hcl:"assumed_by"`
	ManagedPolicies []string `hcl:"managed_policies,optional"`
}

type projectBlock struct {
	ProjectName    string            `hcl:"project_name,optional"`
	Description    string            `hcl:"description,optional"`
	Source         hcl.Expression    `hcl:"source"`
	BuildImage     string            `hcl:"build_image,optional"`
	ComputeType    string            `hcl:"compute_type,optional"`
	Privileged     bool              `hcl:"privileged,optional"`
	Role           hcl.Expression    `hcl:"role,optional"`
	BuildSpec      string            `hcl:"buildspec,optional"`
	Environment    map[string]string `hcl:"environment,optional"`
	TimeoutMinutes int               `hcl:"timeout_minutes,optional"`
	Remain         hcl.Body          `hcl:",remain"`
}

type artifactsBlock struct {
	Bucket         hcl.Expression `hcl:"bucket"`
	Name           string         `hcl:"name"`
	Path           string         `hcl:"path,optional"`
	IncludeBuildID *bool          `hcl:"include_build_id,optional"`
	PackageZip     *bool          `hcl:"package_zip,optional"`
}

type pipelineBlock struct {
	PipelineName             string         `hcl:"pipeline_name,optional"`
	ArtifactBucket           hcl.Expression `hcl:"artifact_bucket"`
	Role                     hcl.Expression `hcl:"role,optional"`
	RestartExecutionOnUpdate bool           `hcl:"restart_execution_on_update,optional"`
	Remain                   hcl.Body       `hcl:",remain"`
}

type actionBlock struct {
	Type       string         `hcl:"type"`
	Repository hcl.Expression `hcl:"repository,optional"`
	Branch     string         `hcl:"branch,optional"`
	Trigger    string         `hcl:"trigger,optional"`
	Project    hcl.Expression `hcl:"project,optional"`
	Bucket     hcl.Expression `hcl:"bucket,optional"`
	ObjectKey  string         `hcl:"object_key,optional"`
	Extract    *bool          `hcl:"extract,optional"`
	Inputs     []string       `hcl:"inputs,optional"`
	Outputs    []string       `hcl:"outputs,optional"`
	RunOrder   int            `hcl:"run_order,optional"`
}

type outputBlock struct {
	Value       hcl.Expression `hcl:"value"`
	Description string         `hcl:"description,optional"`
	ExportName  string         `hcl:"export_name,optional"`
}
