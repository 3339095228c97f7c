// This file contains the logic for translating decoded HCL blocks into the
// format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/pipestack/internal/config"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/resourceid"
)

// translator carries the state shared while translating every file of a stack.
type translator struct {
	ctx     context.Context
	evalCtx *hcl.EvalContext
	// declared tracks where each kind/name pair was first declared.
	declared map[string]hcl.Range
}

func newTranslator(ctx context.Context, evalCtx *hcl.EvalContext) *translator {
	return &translator{
		ctx:      ctx,
		evalCtx:  evalCtx,
		declared: make(map[string]hcl.Range),
	}
}

// declare registers a block name and rejects duplicates and unusable names.
func (t *translator) declare(kind, name string, rng hcl.Range) error {
	if !resourceid.ValidName(name) {
		return fmt.Errorf("%s: invalid %s name %q: names start with a letter and contain only letters, digits, '-' and '_'", rng, kind, name)
	}
	key := kind + "." + name
	if prev, exists := t.declared[key]; exists {
		return fmt.Errorf("%s: duplicate %s %q; previously declared at %s", rng, kind, name, prev)
	}
	t.declared[key] = rng
	return nil
}

func (t *translator) decode(block *hcl.Block, target any) error {
	if diags := gohcl.DecodeBody(block.Body, t.evalCtx, target); diags.HasErrors() {
		return fmt.Errorf("failed to decode %s %q: %w", block.Type, block.Labels[0], diags)
	}
	return nil
}

// translateFile converts every top-level block of one file into the model.
func (t *translator) translateFile(filename string, content *hcl.BodyContent, model *config.Model) error {
	logger := ctxlog.FromContext(t.ctx).With("file", filename)
	logger.Debug("Translating HCL file to internal config model.", "blocks", len(content.Blocks))

	for _, block := range content.Blocks {
		name := block.Labels[0]
		if block.Type == "variable" {
			continue // Resolved in the first pass.
		}
		if err := t.declare(block.Type, name, block.DefRange); err != nil {
			return err
		}

		var err error
		switch block.Type {
		case "stack":
			err = t.translateStack(block, model)
		case "asset":
			err = t.translateAsset(filename, block, model)
		case "bucket":
			err = t.translateBucket(block, model)
		case "repository":
			err = t.translateRepository(block, model)
		case "role":
			err = t.translateRole(block, model)
		case "project":
			err = t.translateProject(block, model)
		case "pipeline":
			err = t.translatePipeline(block, model)
		case "output":
			err = t.translateOutput(block, model)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *translator) translateStack(block *hcl.Block, model *config.Model) error {
	if model.Stack != nil {
		return fmt.Errorf("%s: only one stack block is allowed; the first was declared at %s", block.DefRange, model.Stack.DeclRange)
	}
	var sb stackBlock
	if err := t.decode(block, &sb); err != nil {
		return err
	}
	model.Stack = &config.Stack{
		Name:        block.Labels[0],
		Description: sb.Description,
		Account:     sb.Account,
		Region:      sb.Region,
		Qualifier:   sb.Qualifier,
		Tags:        sb.Tags,
		DeclRange:   block.DefRange,
	}
	return nil
}

// translateAsset resolves a relative asset path against the directory of the
// file that declares it.
func (t *translator) translateAsset(filename string, block *hcl.Block, model *config.Model) error {
	var ab assetBlock
	if err := t.decode(block, &ab); err != nil {
		return err
	}
	path := ab.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(filename), path)
	}
	model.Assets = append(model.Assets, &config.Asset{
		Name:      block.Labels[0],
		Path:      path,
		Exclude:   ab.Exclude,
		DeclRange: block.DefRange,
	})
	return nil
}

func (t *translator) translateBucket(block *hcl.Block, model *config.Model) error {
	var bb bucketBlock
	if err := t.decode(block, &bb); err != nil {
		return err
	}
	model.Buckets = append(model.Buckets, &config.Bucket{
		Name:          block.Labels[0],
		BucketName:    bb.BucketName,
		Encryption:    bb.Encryption,
		Versioned:     bb.Versioned,
		RemovalPolicy: bb.RemovalPolicy,
		DeclRange:     block.DefRange,
	})
	return nil
}

func (t *translator) translateRepository(block *hcl.Block, model *config.Model) error {
	var rb repositoryBlock
	if err := t.decode(block, &rb); err != nil {
		return err
	}
	code, diags := optionalRef(t.ctx, rb.Code, "code", resourceid.KindAsset)
	if diags.HasErrors() {
		return fmt.Errorf("repository %q: %w", block.Labels[0], diags)
	}
	model.Repositories = append(model.Repositories, &config.Repository{
		Name:           block.Labels[0],
		RepositoryName: rb.RepositoryName,
		Description:    rb.Description,
		Code:           code,
		Branch:         rb.Branch,
		DeclRange:      block.DefRange,
	})
	return nil
}

func (t *translator) translateRole(block *hcl.Block, model *config.Model) error {
	var rb roleBlock
	if err := t.decode(block, &rb); err != nil {
		return err
	}
	model.Roles = append(model.Roles, &config.Role{
		Name:            block.Labels[0],
		Description:     rb.Description,
		AssumedBy:       rb.AssumedBy,
		ManagedPolicies: rb.ManagedPolicies,
		DeclRange:       block.DefRange,
	})
	return nil
}

func (t *translator) translateProject(block *hcl.Block, model *config.Model) error {
	name := block.Labels[0]
	var pb projectBlock
	if err := t.decode(block, &pb); err != nil {
		return err
	}

	var diags hcl.Diagnostics
	source, d := requiredRef(pb.Source, "source", resourceid.KindRepository)
	diags = append(diags, d...)
	role, d := optionalRef(t.ctx, pb.Role, "role", resourceid.KindRole)
	diags = append(diags, d...)

	nested, d := pb.Remain.Content(projectNestedSchema)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return fmt.Errorf("project %q: %w", name, diags)
	}

	project := &config.Project{
		Name:           name,
		ProjectName:    pb.ProjectName,
		Description:    pb.Description,
		Source:         source,
		BuildImage:     pb.BuildImage,
		ComputeType:    pb.ComputeType,
		Privileged:     pb.Privileged,
		Role:           role,
		BuildSpec:      pb.BuildSpec,
		Environment:    pb.Environment,
		TimeoutMinutes: pb.TimeoutMinutes,
		DeclRange:      block.DefRange,
	}

	artifactsBlk, d := findUniqueBlock(nested.Blocks, "artifacts")
	if d.HasErrors() {
		return fmt.Errorf("project %q: %w", name, d)
	}
	if artifactsBlk != nil {
		var ab artifactsBlock
		if d := gohcl.DecodeBody(artifactsBlk.Body, t.evalCtx, &ab); d.HasErrors() {
			return fmt.Errorf("project %q artifacts: %w", name, d)
		}
		bucket, d := requiredRef(ab.Bucket, "bucket", resourceid.KindBucket)
		if d.HasErrors() {
			return fmt.Errorf("project %q artifacts: %w", name, d)
		}
		project.Artifacts = &config.ProjectArtifacts{
			Bucket:         bucket,
			Name:           ab.Name,
			Path:           ab.Path,
			IncludeBuildID: ab.IncludeBuildID,
			PackageZip:     ab.PackageZip,
			DeclRange:      artifactsBlk.DefRange,
		}
	}

	model.Projects = append(model.Projects, project)
	return nil
}

func (t *translator) translatePipeline(block *hcl.Block, model *config.Model) error {
	name := block.Labels[0]
	logger := ctxlog.FromContext(t.ctx).With("pipeline", name)

	var pb pipelineBlock
	if err := t.decode(block, &pb); err != nil {
		return err
	}

	var diags hcl.Diagnostics
	bucket, d := requiredRef(pb.ArtifactBucket, "artifact_bucket", resourceid.KindBucket)
	diags = append(diags, d...)
	role, d := optionalRef(t.ctx, pb.Role, "role", resourceid.KindRole)
	diags = append(diags, d...)
	nested, d := pb.Remain.Content(pipelineNestedSchema)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return fmt.Errorf("pipeline %q: %w", name, diags)
	}

	pipeline := &config.Pipeline{
		Name:                     name,
		PipelineName:             pb.PipelineName,
		ArtifactBucket:           bucket,
		Role:                     role,
		RestartExecutionOnUpdate: pb.RestartExecutionOnUpdate,
		DeclRange:                block.DefRange,
	}

	// Stage and action order is significant and follows source order.
	for _, stageBlk := range nested.Blocks {
		stage, err := t.translateStage(name, stageBlk)
		if err != nil {
			return err
		}
		pipeline.Stages = append(pipeline.Stages, stage)
	}
	logger.Debug("Pipeline translated.", "stages", len(pipeline.Stages))

	model.Pipelines = append(model.Pipelines, pipeline)
	return nil
}

func (t *translator) translateStage(pipelineName string, block *hcl.Block) (*config.Stage, error) {
	stage := &config.Stage{Name: block.Labels[0], DeclRange: block.DefRange}

	content, diags := block.Body.Content(stageSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("pipeline %q stage %q: %w", pipelineName, stage.Name, diags)
	}

	for _, actionBlk := range content.Blocks {
		action, err := t.translateAction(pipelineName, stage.Name, actionBlk)
		if err != nil {
			return nil, err
		}
		stage.Actions = append(stage.Actions, action)
	}
	return stage, nil
}

func (t *translator) translateAction(pipelineName, stageName string, block *hcl.Block) (*config.Action, error) {
	name := block.Labels[0]
	where := fmt.Sprintf("pipeline %q stage %q action %q", pipelineName, stageName, name)

	var ab actionBlock
	if d := gohcl.DecodeBody(block.Body, t.evalCtx, &ab); d.HasErrors() {
		return nil, fmt.Errorf("%s: %w", where, d)
	}

	var diags hcl.Diagnostics
	repo, d := optionalRef(t.ctx, ab.Repository, "repository", resourceid.KindRepository)
	diags = append(diags, d...)
	project, d := optionalRef(t.ctx, ab.Project, "project", resourceid.KindProject)
	diags = append(diags, d...)
	bucket, d := optionalRef(t.ctx, ab.Bucket, "bucket", resourceid.KindBucket)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: %w", where, diags)
	}

	return &config.Action{
		Name:       name,
		Type:       ab.Type,
		Repository: repo,
		Branch:     ab.Branch,
		Trigger:    ab.Trigger,
		Project:    project,
		Bucket:     bucket,
		ObjectKey:  ab.ObjectKey,
		Extract:    ab.Extract,
		Inputs:     ab.Inputs,
		Outputs:    ab.Outputs,
		RunOrder:   ab.RunOrder,
		DeclRange:  block.DefRange,
	}, nil
}

func (t *translator) translateOutput(block *hcl.Block, model *config.Model) error {
	var ob outputBlock
	if err := t.decode(block, &ob); err != nil {
		return err
	}
	id, diags := resourceid.FromExpr(ob.Value)
	if diags.HasErrors() {
		return fmt.Errorf("output %q: %w", block.Labels[0], diags)
	}
	model.Outputs = append(model.Outputs, &config.Output{
		Name:        block.Labels[0],
		Value:       id,
		Description: ob.Description,
		ExportName:  ob.ExportName,
		DeclRange:   block.DefRange,
	})
	return nil
}
