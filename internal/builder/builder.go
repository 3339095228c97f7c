package builder

import (
	"context"
	"fmt"

	"github.com/vk/pipestack/internal/config"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/dag"
	"github.com/vk/pipestack/internal/resourceid"
	"github.com/vk/pipestack/internal/stack"
)

// Build constructs a resolved stack and its validated dependency graph from a
// config model.
func Build(ctx context.Context, model *config.Model) (*stack.Stack, *dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting stack construction.")

	b := newBuilder(model)

	// First pass: create all constructs without linking them.
	if err := b.createConstructs(); err != nil {
		return nil, nil, err
	}
	logger.Debug("Build: Construct creation complete.", "resource_count", len(b.st.Resources()))

	// Second pass: resolve references and fill in generated resources.
	if err := b.resolveReferences(ctx); err != nil {
		return nil, nil, err
	}
	logger.Debug("Build: Reference resolution complete.", "role_count", len(b.st.Roles))

	// Third pass: the dependency graph.
	g, err := buildGraph(ctx, b.st)
	if err != nil {
		return nil, nil, err
	}

	// Final validation: Cycle detection.
	if err := g.DetectCycles(); err != nil {
		return nil, nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	logger.Info("Build: Stack construction successful.", "stack", b.st.Name, "nodes", g.Len())
	return b.st, g, nil
}

// builder holds the constructs created so far, indexed by name per kind.
type builder struct {
	model *config.Model
	st    *stack.Stack

	assets    map[string]*stack.Asset
	buckets   map[string]*stack.Bucket
	repos     map[string]*stack.Repository
	roles     map[string]*stack.Role
	projects  map[string]*stack.Project
	pipelines map[string]*stack.Pipeline
}

func newBuilder(model *config.Model) *builder {
	return &builder{
		model:     model,
		st:        &stack.Stack{},
		assets:    make(map[string]*stack.Asset),
		buckets:   make(map[string]*stack.Bucket),
		repos:     make(map[string]*stack.Repository),
		roles:     make(map[string]*stack.Role),
		projects:  make(map[string]*stack.Project),
		pipelines: make(map[string]*stack.Pipeline),
	}
}

func (b *builder) createConstructs() error {
	b.st.Name = defaultStackName
	b.st.Qualifier = stack.DefaultQualifier
	if s := b.model.Stack; s != nil {
		b.st.Name = s.Name
		b.st.Description = s.Description
		b.st.Account = s.Account
		b.st.Region = s.Region
		b.st.Tags = s.Tags
		if s.Qualifier != "" {
			b.st.Qualifier = s.Qualifier
		}
	}

	for _, a := range b.model.Assets {
		asset := &stack.Asset{Name: a.Name, Path: a.Path, Exclude: a.Exclude}
		b.assets[a.Name] = asset
		b.st.Assets = append(b.st.Assets, asset)
	}

	for _, cb := range b.model.Buckets {
		enc, err := parseEncryption(cb.Encryption)
		if err != nil {
			return fmt.Errorf("bucket %q: %w", cb.Name, err)
		}
		policy, err := parseRemovalPolicy(cb.RemovalPolicy)
		if err != nil {
			return fmt.Errorf("bucket %q: %w", cb.Name, err)
		}
		bucket := &stack.Bucket{
			Name:          cb.Name,
			BucketName:    cb.BucketName,
			Encryption:    enc,
			Versioned:     cb.Versioned,
			RemovalPolicy: policy,
		}
		b.buckets[cb.Name] = bucket
		b.st.Buckets = append(b.st.Buckets, bucket)
	}

	for _, cr := range b.model.Repositories {
		repo := &stack.Repository{
			Name:           cr.Name,
			RepositoryName: cr.RepositoryName,
			Description:    cr.Description,
			Branch:         cr.Branch,
		}
		if repo.Branch == "" {
			repo.Branch = defaultBranch
		}
		b.repos[cr.Name] = repo
		b.st.Repositories = append(b.st.Repositories, repo)
	}

	for _, cr := range b.model.Roles {
		role := &stack.Role{
			Name:            cr.Name,
			Description:     cr.Description,
			AssumedBy:       cr.AssumedBy,
			ManagedPolicies: cr.ManagedPolicies,
		}
		b.roles[cr.Name] = role
		b.st.Roles = append(b.st.Roles, role)
	}

	for _, cp := range b.model.Projects {
		image, err := resolveBuildImage(cp.BuildImage)
		if err != nil {
			return fmt.Errorf("project %q: %w", cp.Name, err)
		}
		computeType, err := resolveComputeType(cp.ComputeType)
		if err != nil {
			return fmt.Errorf("project %q: %w", cp.Name, err)
		}
		project := &stack.Project{
			Name:           cp.Name,
			ProjectName:    cp.ProjectName,
			Description:    cp.Description,
			BuildImage:     image,
			ComputeType:    computeType,
			Privileged:     cp.Privileged,
			BuildSpec:      cp.BuildSpec,
			Environment:    cp.Environment,
			TimeoutMinutes: cp.TimeoutMinutes,
		}
		if project.TimeoutMinutes == 0 {
			project.TimeoutMinutes = defaultTimeoutMinutes
		}
		if a := cp.Artifacts; a != nil {
			project.Artifacts = &stack.ProjectArtifacts{
				Name:           a.Name,
				Path:           a.Path,
				IncludeBuildID: boolOr(a.IncludeBuildID, true),
				PackageZip:     boolOr(a.PackageZip, true),
			}
		}
		b.projects[cp.Name] = project
		b.st.Projects = append(b.st.Projects, project)
	}

	for _, cp := range b.model.Pipelines {
		pipeline := &stack.Pipeline{
			Name:                     cp.Name,
			PipelineName:             cp.PipelineName,
			RestartExecutionOnUpdate: cp.RestartExecutionOnUpdate,
		}
		b.pipelines[cp.Name] = pipeline
		b.st.Pipelines = append(b.st.Pipelines, pipeline)
	}
	return nil
}

func (b *builder) resolveReferences(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for _, cr := range b.model.Repositories {
		if cr.Code == nil {
			continue
		}
		asset, err := lookup(b.assets, resourceid.KindAsset, fmt.Sprintf("repository %q", cr.Name), "code", cr.Code)
		if err != nil {
			return err
		}
		b.repos[cr.Name].Code = asset
	}

	for _, cp := range b.model.Projects {
		if err := b.resolveProject(ctx, cp); err != nil {
			return err
		}
	}

	for _, cp := range b.model.Pipelines {
		if err := b.resolvePipeline(ctx, cp); err != nil {
			return err
		}
	}

	for _, co := range b.model.Outputs {
		out, err := b.resolveOutput(co)
		if err != nil {
			return err
		}
		b.st.Outputs = append(b.st.Outputs, out)
	}

	logger.Debug("References resolved.", "outputs", len(b.st.Outputs))
	return nil
}

func (b *builder) resolveProject(ctx context.Context, cp *config.Project) error {
	from := fmt.Sprintf("project %q", cp.Name)
	project := b.projects[cp.Name]

	if cp.Source == nil {
		return fmt.Errorf("%s: source is required", from)
	}
	repo, err := lookup(b.repos, resourceid.KindRepository, from, "source", cp.Source)
	if err != nil {
		return err
	}
	project.Source = repo

	if cp.Role != nil {
		role, err := lookup(b.roles, resourceid.KindRole, from, "role", cp.Role)
		if err != nil {
			return err
		}
		project.Role = role
	} else {
		role, err := b.generateRole(ctx, cp.Name, codeBuildPrincipal)
		if err != nil {
			return fmt.Errorf("%s: %w", from, err)
		}
		project.Role = role
	}

	if cp.Artifacts != nil {
		if cp.Artifacts.Bucket == nil {
			return fmt.Errorf("%s: artifacts bucket is required", from)
		}
		bucket, err := lookup(b.buckets, resourceid.KindBucket, from, "artifacts bucket", cp.Artifacts.Bucket)
		if err != nil {
			return err
		}
		project.Artifacts.Bucket = bucket
	}
	return nil
}

func (b *builder) resolvePipeline(ctx context.Context, cp *config.Pipeline) error {
	from := fmt.Sprintf("pipeline %q", cp.Name)
	pipeline := b.pipelines[cp.Name]

	if cp.ArtifactBucket == nil {
		return fmt.Errorf("%s: artifact_bucket is required", from)
	}
	bucket, err := lookup(b.buckets, resourceid.KindBucket, from, "artifact_bucket", cp.ArtifactBucket)
	if err != nil {
		return err
	}
	pipeline.ArtifactBucket = bucket

	if cp.Role != nil {
		role, err := lookup(b.roles, resourceid.KindRole, from, "role", cp.Role)
		if err != nil {
			return err
		}
		pipeline.Role = role
	} else {
		role, err := b.generateRole(ctx, cp.Name, codePipelinePrincipal)
		if err != nil {
			return fmt.Errorf("%s: %w", from, err)
		}
		pipeline.Role = role
	}

	produced := make(map[string]*stack.Artifact)
	for _, cs := range cp.Stages {
		stage := &stack.Stage{Name: cs.Name}
		for _, ca := range cs.Actions {
			action, err := b.resolveAction(fmt.Sprintf("%s stage %q action %q", from, cs.Name, ca.Name), cs.Name, ca, produced)
			if err != nil {
				return err
			}
			stage.Actions = append(stage.Actions, action)
		}
		pipeline.Stages = append(pipeline.Stages, stage)
	}

	// Inputs are linked after all outputs are known; ordering is checked by validate.
	for si, cs := range cp.Stages {
		for ai, ca := range cs.Actions {
			action := pipeline.Stages[si].Actions[ai]
			for _, name := range ca.Inputs {
				artifact, ok := produced[name]
				if !ok {
					artifact = &stack.Artifact{Name: name}
				}
				action.Inputs = append(action.Inputs, artifact)
			}
		}
	}
	return nil
}

func (b *builder) resolveAction(from, stageName string, ca *config.Action, produced map[string]*stack.Artifact) (*stack.Action, error) {
	actionType, err := parseActionType(ca.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", from, err)
	}
	action := &stack.Action{
		Name:      ca.Name,
		Type:      actionType,
		Branch:    ca.Branch,
		ObjectKey: ca.ObjectKey,
		Extract:   boolOr(ca.Extract, true),
		RunOrder:  ca.RunOrder,
	}
	if action.RunOrder == 0 {
		action.RunOrder = defaultRunOrder
	}

	if actionType.IsSource() {
		trigger, err := parseTrigger(ca.Trigger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", from, err)
		}
		action.Trigger = trigger
	} else if ca.Trigger != "" {
		return nil, fmt.Errorf("%s: trigger is only allowed on source actions", from)
	}

	if ca.Repository != nil {
		repo, err := lookup(b.repos, resourceid.KindRepository, from, "repository", ca.Repository)
		if err != nil {
			return nil, err
		}
		action.Repository = repo
		if action.Branch == "" {
			action.Branch = repo.Branch
		}
	}
	if ca.Project != nil {
		project, err := lookup(b.projects, resourceid.KindProject, from, "project", ca.Project)
		if err != nil {
			return nil, err
		}
		action.Project = project
	}
	if ca.Bucket != nil {
		bucket, err := lookup(b.buckets, resourceid.KindBucket, from, "bucket", ca.Bucket)
		if err != nil {
			return nil, err
		}
		action.Bucket = bucket
	}

	outputs := ca.Outputs
	if len(outputs) == 0 && producesImplicitOutput(actionType) {
		outputs = []string{implicitArtifactName(stageName, ca.Name)}
	}
	for _, name := range outputs {
		artifact := &stack.Artifact{Name: name}
		if _, exists := produced[name]; !exists {
			produced[name] = artifact
		}
		action.Outputs = append(action.Outputs, artifact)
	}
	return action, nil
}

// generateRole creates the default service role of a project or pipeline.
func (b *builder) generateRole(ctx context.Context, owner, principal string) (*stack.Role, error) {
	name := owner + "Role"
	if _, exists := b.roles[name]; exists {
		return nil, fmt.Errorf("generated role name %q collides with a declared role; set role explicitly", name)
	}
	role := &stack.Role{
		Name:      name,
		AssumedBy: []string{principal},
		Generated: true,
	}
	b.roles[name] = role
	b.st.Roles = append(b.st.Roles, role)
	ctxlog.FromContext(ctx).Debug("Generated default role.", "role", name, "principal", principal)
	return role, nil
}

func (b *builder) resolveOutput(co *config.Output) (*stack.Output, error) {
	from := fmt.Sprintf("output %q", co.Name)
	target, ok := b.st.Lookup(co.Value)
	if !ok {
		return nil, fmt.Errorf("%s: value references undeclared %s %q", from, co.Value.Kind, co.Value.Name)
	}
	if !stack.HasAttribute(co.Value.Kind, co.Value.Attribute) {
		names := stack.AttributeNames(co.Value.Kind)
		if len(names) == 0 {
			return nil, fmt.Errorf("%s: %s resources have no output attributes", from, co.Value.Kind)
		}
		return nil, fmt.Errorf("%s: %s has no attribute %q; available: %v", from, co.Value.Kind, co.Value.Attribute, names)
	}
	return &stack.Output{
		Name:        co.Name,
		Target:      target,
		Attribute:   co.Value.Attribute,
		Description: co.Description,
		ExportName:  co.ExportName,
	}, nil
}

// lookup resolves a reference within the index of one kind.
func lookup[T any](index map[string]T, want resourceid.Kind, from, attr string, id *resourceid.ID) (T, error) {
	var zero T
	if id.Kind != want {
		return zero, fmt.Errorf("%s: %s must reference a %s, got %s", from, attr, want, id)
	}
	r, ok := index[id.Name]
	if !ok {
		return zero, fmt.Errorf("%s: %s references undeclared %s %q", from, attr, want, id.Name)
	}
	return r, nil
}
