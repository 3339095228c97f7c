package stack

import (
	"github.com/vk/pipestack/internal/resourceid"
)

// Resource is a construct that takes part in the dependency graph.
type Resource interface {
	// ID is the reference address of the construct, e.g. bucket.ArtifactBucket.
	// Its name is also the construct ID inside the synthesized stack.
	ID() resourceid.ID
	// References lists the constructs this one depends on, without duplicates.
	References() []resourceid.ID
}

// Encryption is the server-side encryption mode of a bucket.
type Encryption string

const (
	EncryptionS3Managed  Encryption = "S3_MANAGED"
	EncryptionKMSManaged Encryption = "KMS_MANAGED"
	EncryptionNone       Encryption = "UNENCRYPTED"
)

// RemovalPolicy decides what happens to a resource when it leaves the stack.
type RemovalPolicy string

const (
	RemovalRetain  RemovalPolicy = "retain"
	RemovalDestroy RemovalPolicy = "destroy"
)

// ActionType is the kind of a pipeline action.
type ActionType string

const (
	ActionCodeCommitSource ActionType = "codecommit_source"
	ActionCodeBuild        ActionType = "codebuild"
	ActionManualApproval   ActionType = "manual_approval"
	ActionS3Deploy         ActionType = "s3_deploy"
)

// IsSource reports whether the action type pulls source into the pipeline.
func (t ActionType) IsSource() bool {
	return t == ActionCodeCommitSource
}

// Trigger is how a source action detects changes.
type Trigger string

const (
	TriggerEvents Trigger = "events"
	TriggerPoll   Trigger = "poll"
	TriggerNone   Trigger = "none"
)

// Asset is a local file or directory shipped with the stack.
type Asset struct {
	Name    string
	Path    string
	Exclude []string
}

func (a *Asset) ID() resourceid.ID { return resourceid.New(resourceid.KindAsset, a.Name) }
func (a *Asset) References() []resourceid.ID { return nil }

// Bucket is an artifact store.
type Bucket struct {
	Name string
	// BucketName is the physical name; empty lets the provider generate one.
	BucketName    string
	Encryption    Encryption
	Versioned     bool
	RemovalPolicy RemovalPolicy
}

func (b *Bucket) ID() resourceid.ID { return resourceid.New(resourceid.KindBucket, b.Name) }
func (b *Bucket) References() []resourceid.ID { return nil }

// Encrypted reports whether objects are encrypted at rest.
func (b *Bucket) Encrypted() bool {
	return b.Encryption == EncryptionS3Managed || b.Encryption == EncryptionKMSManaged
}

// Repository is a source repository, optionally seeded from an asset.
type Repository struct {
	Name           string
	RepositoryName string
	Description    string
	Code           *Asset
	Branch         string
}

func (r *Repository) ID() resourceid.ID { return resourceid.New(resourceid.KindRepository, r.Name) }

func (r *Repository) References() []resourceid.ID {
	var refs refSet
	if r.Code != nil {
		refs.add(r.Code)
	}
	return refs.ids
}

// Role is an identity assumed by one or more service principals.
type Role struct {
	Name            string
	Description     string
	AssumedBy       []string
	ManagedPolicies []string
	// Generated is set for roles the builder created for a project or
	// pipeline. They are created by their owner at synthesis.
	Generated bool
}

func (r *Role) ID() resourceid.ID { return resourceid.New(resourceid.KindRole, r.Name) }
func (r *Role) References() []resourceid.ID { return nil }

// HasManagedPolicy reports whether the named managed policy is attached.
func (r *Role) HasManagedPolicy(name string) bool {
	for _, p := range r.ManagedPolicies {
		if p == name || p == "arn:aws:iam::aws:policy/"+name {
			return true
		}
	}
	return false
}

// ProjectArtifacts is the storage location of a project's build output.
type ProjectArtifacts struct {
	Bucket         *Bucket
	Name           string
	Path           string
	IncludeBuildID bool
	PackageZip     bool
}

// Project is a build project.
type Project struct {
	Name        string
	ProjectName string
	Description string
	Source      *Repository
	// BuildImage is the resolved image identifier, e.g. aws/codebuild/standard:5.0.
	BuildImage     string
	ComputeType    string
	Privileged     bool
	Role           *Role
	BuildSpec      string
	Environment    map[string]string
	TimeoutMinutes int
	// Artifacts is nil when the project produces no stored artifacts.
	Artifacts *ProjectArtifacts
}

func (p *Project) ID() resourceid.ID { return resourceid.New(resourceid.KindProject, p.Name) }

func (p *Project) References() []resourceid.ID {
	var refs refSet
	if p.Source != nil {
		refs.add(p.Source)
	}
	if p.Role != nil {
		refs.add(p.Role)
	}
	if p.Artifacts != nil && p.Artifacts.Bucket != nil {
		refs.add(p.Artifacts.Bucket)
	}
	return refs.ids
}

// Artifact is a named payload passed between pipeline actions.
type Artifact struct {
	Name string
}

// Action is a single operation within a stage.
type Action struct {
	Name       string
	Type       ActionType
	Repository *Repository
	Branch     string
	Trigger    Trigger
	Project    *Project
	Bucket     *Bucket
	ObjectKey  string
	Extract    bool
	Inputs     []*Artifact
	Outputs    []*Artifact
	RunOrder   int
}

// Stage is an ordered phase of a pipeline.
type Stage struct {
	Name    string
	Actions []*Action
}

// Pipeline is a release pipeline.
type Pipeline struct {
	Name                     string
	PipelineName             string
	ArtifactBucket           *Bucket
	Role                     *Role
	RestartExecutionOnUpdate bool
	Stages                   []*Stage
}

func (p *Pipeline) ID() resourceid.ID { return resourceid.New(resourceid.KindPipeline, p.Name) }

func (p *Pipeline) References() []resourceid.ID {
	var refs refSet
	if p.ArtifactBucket != nil {
		refs.add(p.ArtifactBucket)
	}
	if p.Role != nil {
		refs.add(p.Role)
	}
	for _, a := range p.Actions() {
		if a.Repository != nil {
			refs.add(a.Repository)
		}
		if a.Project != nil {
			refs.add(a.Project)
		}
		if a.Bucket != nil {
			refs.add(a.Bucket)
		}
	}
	return refs.ids
}

// Actions returns every action of the pipeline in stage order.
func (p *Pipeline) Actions() []*Action {
	var out []*Action
	for _, s := range p.Stages {
		out = append(out, s.Actions...)
	}
	return out
}

// Output exposes an attribute of a resource as a stack output.
type Output struct {
	Name   string
	Target Resource
	// Attribute is empty for the resource's default reference value.
	Attribute   string
	Description string
	ExportName  string
}

// refSet collects unique references in insertion order.
type refSet struct {
	ids  []resourceid.ID
	seen map[resourceid.ID]bool
}

func (s *refSet) add(r Resource) {
	if s.seen == nil {
		s.seen = make(map[resourceid.ID]bool)
	}
	id := r.ID()
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.ids = append(s.ids, id)
}
