package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/vk/pipestack/internal/resourceid"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of a stack
// declaration gathered from every loaded file.
type Model struct {
	Stack        *Stack
	Variables    map[string]*Variable
	Assets       []*Asset
	Buckets      []*Bucket
	Repositories []*Repository
	Roles        []*Role
	Projects     []*Project
	Pipelines    []*Pipeline
	Outputs      []*Output
	// Files lists the source files the model was loaded from.
	Files []string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{Variables: make(map[string]*Variable)}
}

// Stack holds stack-wide settings from the `stack` block.
type Stack struct {
	Name        string
	Description string
	Account     string
	Region      string
	// Qualifier selects the bootstrap resources assets are published to.
	Qualifier string
	Tags      map[string]string
	DeclRange hcl.Range
}

// Variable is an input variable; Value is its effective value after
// defaults and overrides are applied.
type Variable struct {
	Name        string
	Description string
	Type        cty.Type
	Value       cty.Value
	DeclRange   hcl.Range
}

// Asset is a local file or directory packaged and uploaded at deploy time.
type Asset struct {
	Name      string
	Path      string
	Exclude   []string
	DeclRange hcl.Range
}

// Bucket is an object storage bucket.
type Bucket struct {
	Name          string
	BucketName    string
	Encryption    string
	Versioned     bool
	RemovalPolicy string
	DeclRange     hcl.Range
}

// Repository is a managed version-control repository.
type Repository struct {
	Name           string
	RepositoryName string
	Description    string
	Code           *resourceid.ID
	Branch         string
	DeclRange      hcl.Range
}

// Role is an identity assumed by a service.
type Role struct {
	Name            string
	Description     string
	AssumedBy       []string
	ManagedPolicies []string
	DeclRange       hcl.Range
}

// Project is a build job definition.
type Project struct {
	Name           string
	ProjectName    string
	Description    string
	Source         *resourceid.ID
	BuildImage     string
	ComputeType    string
	Privileged     bool
	Role           *resourceid.ID
	BuildSpec      string
	Environment    map[string]string
	TimeoutMinutes int
	Artifacts      *ProjectArtifacts
	DeclRange      hcl.Range
}

// ProjectArtifacts describes where and how a project stores its output.
type ProjectArtifacts struct {
	Bucket         *resourceid.ID
	Name           string
	Path           string
	IncludeBuildID *bool
	PackageZip     *bool
	DeclRange      hcl.Range
}

// Pipeline is an ordered multi-stage workflow.
type Pipeline struct {
	Name                     string
	PipelineName             string
	ArtifactBucket           *resourceid.ID
	Role                     *resourceid.ID
	RestartExecutionOnUpdate bool
	Stages                   []*Stage
	DeclRange                hcl.Range
}

// Stage is one ordered phase of a pipeline.
type Stage struct {
	Name      string
	Actions   []*Action
	DeclRange hcl.Range
}

// Action is an individual operation within a stage.
type Action struct {
	Name       string
	Type       string
	Repository *resourceid.ID
	Branch     string
	Trigger    string
	Project    *resourceid.ID
	Bucket     *resourceid.ID
	ObjectKey  string
	Extract    *bool
	Inputs     []string
	Outputs    []string
	RunOrder   int
	DeclRange  hcl.Range
}

// Output is a stack output exposing an attribute of a resource.
type Output struct {
	Name        string
	Value       resourceid.ID
	Description string
	ExportName  string
	DeclRange   hcl.Range
}
