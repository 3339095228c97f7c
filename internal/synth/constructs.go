package synth

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodecommit"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipelineactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3assets"
	"github.com/aws/jsii-runtime-go"
	"github.com/vk/pipestack/internal/stack"
	"gopkg.in/yaml.v3"
)

func (d *Definition) defineAsset(a *stack.Asset) error {
	archive, ok := d.archives[a.Name]
	if !ok {
		return fmt.Errorf("asset %q has not been packaged", a.Name)
	}
	path, err := archive.Stage(d.staging)
	if err != nil {
		return err
	}
	construct := awss3assets.NewAsset(d.Stack, jsii.String(a.Name), &awss3assets.AssetProps{
		Path:          jsii.String(path),
		AssetHash:     jsii.String(archive.Hash),
		AssetHashType: awscdk.AssetHashType_CUSTOM,
	})
	d.assets[a] = construct
	d.nodes[a.ID()] = construct
	return nil
}

var encryptions = map[stack.Encryption]awss3.BucketEncryption{
	stack.EncryptionS3Managed:  awss3.BucketEncryption_S3_MANAGED,
	stack.EncryptionKMSManaged: awss3.BucketEncryption_KMS_MANAGED,
	stack.EncryptionNone:       awss3.BucketEncryption_UNENCRYPTED,
}

func removalPolicy(p stack.RemovalPolicy) awscdk.RemovalPolicy {
	if p == stack.RemovalDestroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func (d *Definition) defineBucket(b *stack.Bucket) {
	construct := awss3.NewBucket(d.Stack, jsii.String(b.Name), &awss3.BucketProps{
		BucketName:    optional(b.BucketName),
		Encryption:    encryptions[b.Encryption],
		Versioned:     jsii.Bool(b.Versioned),
		RemovalPolicy: removalPolicy(b.RemovalPolicy),
	})
	d.buckets[b] = construct
	d.nodes[b.ID()] = construct
}

// defineRepository seeds the repository from its code asset.
func (d *Definition) defineRepository(r *stack.Repository) error {
	props := &awscodecommit.RepositoryProps{
		RepositoryName: jsii.String(r.RepositoryName),
		Description:    optional(r.Description),
	}
	if r.Code != nil {
		code, ok := d.assets[r.Code]
		if !ok {
			return fmt.Errorf("repository %q: asset %q is not defined", r.Name, r.Code.Name)
		}
		props.Code = awscodecommit.Code_FromAsset(code, optional(r.Branch))
	}
	construct := awscodecommit.NewRepository(d.Stack, jsii.String(r.Name), props)
	d.repos[r] = construct
	d.nodes[r.ID()] = construct
	return nil
}

func (d *Definition) defineRole(r *stack.Role) error {
	principals := make([]awsiam.IPrincipal, 0, len(r.AssumedBy))
	for _, p := range r.AssumedBy {
		principals = append(principals, awsiam.NewServicePrincipal(jsii.String(p), nil))
	}
	var assumedBy awsiam.IPrincipal
	switch len(principals) {
	case 0:
		return fmt.Errorf("role %q trusts no principal", r.Name)
	case 1:
		assumedBy = principals[0]
	default:
		assumedBy = awsiam.NewCompositePrincipal(principals...)
	}

	props := &awsiam.RoleProps{
		AssumedBy:   assumedBy,
		Description: optional(r.Description),
	}
	if len(r.ManagedPolicies) > 0 {
		policies := make([]awsiam.IManagedPolicy, 0, len(r.ManagedPolicies))
		for i, p := range r.ManagedPolicies {
			if strings.HasPrefix(p, "arn:") {
				id := fmt.Sprintf("%sManagedPolicy%d", r.Name, i)
				policies = append(policies, awsiam.ManagedPolicy_FromManagedPolicyArn(d.Stack, jsii.String(id), jsii.String(p)))
				continue
			}
			policies = append(policies, awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String(p)))
		}
		props.ManagedPolicies = &policies
	}

	construct := awsiam.NewRole(d.Stack, jsii.String(r.Name), props)
	d.roles[r] = construct
	d.nodes[r.ID()] = construct
	return nil
}

// useRole records the role a project or pipeline created for itself.
func (d *Definition) useRole(r *stack.Role, created awsiam.IRole) {
	if r == nil || !r.Generated {
		return
	}
	d.roles[r] = created
	d.nodes[r.ID()] = created
}

// declaredRole is the role construct of r, or nil when the owner creates it.
func (d *Definition) declaredRole(r *stack.Role) awsiam.IRole {
	if r == nil || r.Generated {
		return nil
	}
	return d.roles[r]
}

func (d *Definition) defineProject(p *stack.Project) error {
	if p.Source == nil {
		return fmt.Errorf("project %q has no source", p.Name)
	}
	props := &awscodebuild.ProjectProps{
		ProjectName: optional(p.ProjectName),
		Description: optional(p.Description),
		Source: awscodebuild.Source_CodeCommit(&awscodebuild.CodeCommitSourceProps{
			Repository: d.repos[p.Source],
		}),
		Environment: &awscodebuild.BuildEnvironment{
			BuildImage:  awscodebuild.LinuxBuildImage_FromCodeBuildImageId(jsii.String(p.BuildImage)),
			ComputeType: awscodebuild.ComputeType(p.ComputeType),
			Privileged:  jsii.Bool(p.Privileged),
		},
		Role:    d.declaredRole(p.Role),
		Timeout: awscdk.Duration_Minutes(jsii.Number(float64(p.TimeoutMinutes))),
	}
	if len(p.Environment) > 0 {
		vars := make(map[string]*awscodebuild.BuildEnvironmentVariable, len(p.Environment))
		for name, value := range p.Environment {
			vars[name] = &awscodebuild.BuildEnvironmentVariable{Value: jsii.String(value)}
		}
		props.EnvironmentVariables = &vars
	}
	if p.BuildSpec != "" {
		spec, err := buildSpec(p.BuildSpec)
		if err != nil {
			return fmt.Errorf("project %q: %w", p.Name, err)
		}
		props.BuildSpec = spec
	}
	if a := p.Artifacts; a != nil {
		props.Artifacts = awscodebuild.Artifacts_S3(&awscodebuild.S3ArtifactsProps{
			Bucket:         d.buckets[a.Bucket],
			Name:           jsii.String(a.Name),
			Path:           optional(a.Path),
			IncludeBuildId: jsii.Bool(a.IncludeBuildID),
			PackageZip:     jsii.Bool(a.PackageZip),
		})
	}

	construct := awscodebuild.NewProject(d.Stack, jsii.String(p.Name), props)
	d.projects[p] = construct
	d.nodes[p.ID()] = construct
	d.useRole(p.Role, construct.Role())
	return nil
}

// buildSpec reads a single-line value as a file name in the source and
// anything longer as an inline YAML build specification.
func buildSpec(raw string) (awscodebuild.BuildSpec, error) {
	if !strings.Contains(raw, "\n") {
		return awscodebuild.BuildSpec_FromSourceFilename(jsii.String(raw)), nil
	}
	var spec map[string]interface{}
	if err := yaml.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("invalid inline buildspec: %w", err)
	}
	return awscodebuild.BuildSpec_FromObject(&spec), nil
}

func (d *Definition) definePipeline(p *stack.Pipeline) error {
	if p.ArtifactBucket == nil {
		return fmt.Errorf("pipeline %q has no artifact bucket", p.Name)
	}
	construct := awscodepipeline.NewPipeline(d.Stack, jsii.String(p.Name), &awscodepipeline.PipelineProps{
		PipelineName:             optional(p.PipelineName),
		ArtifactBucket:           d.buckets[p.ArtifactBucket],
		Role:                     d.declaredRole(p.Role),
		RestartExecutionOnUpdate: jsii.Bool(p.RestartExecutionOnUpdate),
	})
	d.pipelines[p] = construct
	d.nodes[p.ID()] = construct
	d.useRole(p.Role, construct.Role())

	// Stages are added once the pipeline exists so every action can run as
	// the pipeline role, generated or not.
	role := construct.Role()
	artifacts := make(map[string]awscodepipeline.Artifact)
	for _, s := range p.Stages {
		actions := make([]awscodepipeline.IAction, 0, len(s.Actions))
		for _, a := range s.Actions {
			action, err := d.defineAction(a, role, artifacts)
			if err != nil {
				return fmt.Errorf("pipeline %q stage %q: %w", p.Name, s.Name, err)
			}
			actions = append(actions, action)
		}
		construct.AddStage(&awscodepipeline.StageOptions{
			StageName: jsii.String(s.Name),
			Actions:   &actions,
		})
	}
	return nil
}

var triggers = map[stack.Trigger]awscodepipelineactions.CodeCommitTrigger{
	stack.TriggerEvents: awscodepipelineactions.CodeCommitTrigger_EVENTS,
	stack.TriggerPoll:   awscodepipelineactions.CodeCommitTrigger_POLL,
	stack.TriggerNone:   awscodepipelineactions.CodeCommitTrigger_NONE,
}

func (d *Definition) defineAction(a *stack.Action, role awsiam.IRole, artifacts map[string]awscodepipeline.Artifact) (awscodepipeline.IAction, error) {
	artifact := func(ref *stack.Artifact) awscodepipeline.Artifact {
		if existing, ok := artifacts[ref.Name]; ok {
			return existing
		}
		created := awscodepipeline.NewArtifact(jsii.String(ref.Name))
		artifacts[ref.Name] = created
		return created
	}
	name := jsii.String(a.Name)
	runOrder := jsii.Number(float64(a.RunOrder))

	switch a.Type {
	case stack.ActionCodeCommitSource:
		if a.Repository == nil || len(a.Outputs) != 1 {
			return nil, fmt.Errorf("action %q needs a repository and exactly one output", a.Name)
		}
		return awscodepipelineactions.NewCodeCommitSourceAction(&awscodepipelineactions.CodeCommitSourceActionProps{
			ActionName: name,
			RunOrder:   runOrder,
			Role:       role,
			Repository: d.repos[a.Repository],
			Branch:     optional(a.Branch),
			Trigger:    triggers[a.Trigger],
			Output:     artifact(a.Outputs[0]),
		}), nil

	case stack.ActionCodeBuild:
		if a.Project == nil || len(a.Inputs) == 0 {
			return nil, fmt.Errorf("action %q needs a project and an input", a.Name)
		}
		props := &awscodepipelineactions.CodeBuildActionProps{
			ActionName: name,
			RunOrder:   runOrder,
			Role:       role,
			Project:    d.projects[a.Project],
			Input:      artifact(a.Inputs[0]),
		}
		if len(a.Inputs) > 1 {
			extra := make([]awscodepipeline.Artifact, 0, len(a.Inputs)-1)
			for _, in := range a.Inputs[1:] {
				extra = append(extra, artifact(in))
			}
			props.ExtraInputs = &extra
		}
		if len(a.Outputs) > 0 {
			outputs := make([]awscodepipeline.Artifact, 0, len(a.Outputs))
			for _, out := range a.Outputs {
				outputs = append(outputs, artifact(out))
			}
			props.Outputs = &outputs
		}
		return awscodepipelineactions.NewCodeBuildAction(props), nil

	case stack.ActionManualApproval:
		return awscodepipelineactions.NewManualApprovalAction(&awscodepipelineactions.ManualApprovalActionProps{
			ActionName: name,
			RunOrder:   runOrder,
			Role:       role,
		}), nil

	case stack.ActionS3Deploy:
		if a.Bucket == nil || len(a.Inputs) != 1 {
			return nil, fmt.Errorf("action %q needs a bucket and exactly one input", a.Name)
		}
		return awscodepipelineactions.NewS3DeployAction(&awscodepipelineactions.S3DeployActionProps{
			ActionName: name,
			RunOrder:   runOrder,
			Role:       role,
			Bucket:     d.buckets[a.Bucket],
			Input:      artifact(a.Inputs[0]),
			Extract:    jsii.Bool(a.Extract),
			ObjectKey:  optional(a.ObjectKey),
		}), nil
	}
	return nil, fmt.Errorf("action %q has unsupported type %s", a.Name, a.Type)
}

func (d *Definition) defineOutput(o *stack.Output) error {
	value, err := d.outputValue(o)
	if err != nil {
		return err
	}
	awscdk.NewCfnOutput(d.Stack, jsii.String(o.Name), &awscdk.CfnOutputProps{
		Value:       value,
		Description: optional(o.Description),
		ExportName:  optional(o.ExportName),
	})
	return nil
}

// outputValue resolves an output attribute to the token of its construct.
// An empty attribute selects the resource name.
func (d *Definition) outputValue(o *stack.Output) (*string, error) {
	attr := o.Attribute
	switch t := o.Target.(type) {
	case *stack.Bucket:
		b := d.buckets[t]
		switch attr {
		case "", "name":
			return b.BucketName(), nil
		case "arn":
			return b.BucketArn(), nil
		case "domain_name":
			return b.BucketDomainName(), nil
		}
	case *stack.Repository:
		r := d.repos[t]
		switch attr {
		case "", "name":
			return r.RepositoryName(), nil
		case "arn":
			return r.RepositoryArn(), nil
		case "clone_url_http":
			return r.RepositoryCloneUrlHttp(), nil
		case "clone_url_ssh":
			return r.RepositoryCloneUrlSsh(), nil
		}
	case *stack.Role:
		r, ok := d.roles[t]
		if !ok {
			break
		}
		switch attr {
		case "", "name":
			return r.RoleName(), nil
		case "arn":
			return r.RoleArn(), nil
		case "role_id":
			if cfn, ok := r.Node().DefaultChild().(awsiam.CfnRole); ok {
				return cfn.AttrRoleId(), nil
			}
		}
	case *stack.Project:
		p := d.projects[t]
		switch attr {
		case "", "name":
			return p.ProjectName(), nil
		case "arn":
			return p.ProjectArn(), nil
		}
	case *stack.Pipeline:
		p := d.pipelines[t]
		switch attr {
		case "", "name":
			return p.PipelineName(), nil
		case "version":
			return p.PipelineVersion(), nil
		}
	}
	return nil, fmt.Errorf("output %q: %s has no attribute %q", o.Name, o.Target.ID(), attr)
}

