package synth

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodecommit"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3assets"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/vk/pipestack/internal/asset"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/resourceid"
	"github.com/vk/pipestack/internal/stack"
)

// Definition is the construct tree of one stack.
type Definition struct {
	App   awscdk.App
	Stack awscdk.Stack

	st       *stack.Stack
	archives map[string]*asset.Archive
	staging  string

	nodes     map[resourceid.ID]constructs.IConstruct
	assets    map[*stack.Asset]awss3assets.Asset
	buckets   map[*stack.Bucket]awss3.Bucket
	repos     map[*stack.Repository]awscodecommit.Repository
	roles     map[*stack.Role]awsiam.IRole
	projects  map[*stack.Project]awscodebuild.Project
	pipelines map[*stack.Pipeline]awscodepipeline.Pipeline
}

// Define builds the constructs of st in a new app writing to outDir.
// archives holds the packaged assets by asset name; every asset used as
// repository code must be present.
func Define(ctx context.Context, st *stack.Stack, archives map[string]*asset.Archive, outDir string) (d *Definition, err error) {
	logger := ctxlog.FromContext(ctx).With("stack", st.Name)
	logger.Debug("Defining constructs.", "out_dir", outDir)
	defer recoverJSII(&err, "failed to define stack %s", st.Name)

	d = &Definition{
		st:        st,
		archives:  archives,
		nodes:     make(map[resourceid.ID]constructs.IConstruct),
		assets:    make(map[*stack.Asset]awss3assets.Asset),
		buckets:   make(map[*stack.Bucket]awss3.Bucket),
		repos:     make(map[*stack.Repository]awscodecommit.Repository),
		roles:     make(map[*stack.Role]awsiam.IRole),
		projects:  make(map[*stack.Project]awscodebuild.Project),
		pipelines: make(map[*stack.Pipeline]awscodepipeline.Pipeline),
	}
	d.App = awscdk.NewApp(&awscdk.AppProps{Outdir: jsii.String(outDir)})
	d.Stack = awscdk.NewStack(d.App, jsii.String(st.Name), stackProps(st))

	// Assets are copied into the assembly when they are defined; the staging
	// copies are removed once the tree is complete.
	d.staging, err = os.MkdirTemp("", "pipestack-assets-")
	if err != nil {
		return nil, fmt.Errorf("failed to create asset staging directory: %w", err)
	}
	defer os.RemoveAll(d.staging)

	for _, a := range st.Assets {
		if err := d.defineAsset(a); err != nil {
			return nil, err
		}
	}
	for _, b := range st.Buckets {
		d.defineBucket(b)
	}
	for _, r := range st.Repositories {
		if err := d.defineRepository(r); err != nil {
			return nil, err
		}
	}
	for _, r := range st.Roles {
		if r.Generated {
			continue
		}
		if err := d.defineRole(r); err != nil {
			return nil, err
		}
	}
	for _, p := range st.Projects {
		if err := d.defineProject(p); err != nil {
			return nil, err
		}
	}
	for _, p := range st.Pipelines {
		if err := d.definePipeline(p); err != nil {
			return nil, err
		}
	}
	for _, o := range st.Outputs {
		if err := d.defineOutput(o); err != nil {
			return nil, err
		}
	}

	logger.Debug("Constructs defined.", "resources", len(d.nodes), "outputs", len(st.Outputs))
	return d, nil
}

func stackProps(st *stack.Stack) *awscdk.StackProps {
	props := &awscdk.StackProps{
		Description: optional(st.Description),
		Synthesizer: awscdk.NewDefaultStackSynthesizer(&awscdk.DefaultStackSynthesizerProps{
			Qualifier: optional(st.Qualifier),
		}),
	}
	if st.Account != "" || st.Region != "" {
		props.Env = &awscdk.Environment{
			Account: optional(st.Account),
			Region:  optional(st.Region),
		}
	}
	if len(st.Tags) > 0 {
		tags := make(map[string]*string, len(st.Tags))
		for k, v := range st.Tags {
			tags[k] = jsii.String(v)
		}
		props.Tags = &tags
	}
	return props
}

// LogicalID is the CloudFormation logical ID of the primary resource of a
// construct, or "" for constructs without one, such as assets.
func (d *Definition) LogicalID(id resourceid.ID) (logicalID string) {
	node, ok := d.nodes[id.Base()]
	if !ok {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			logicalID = ""
		}
	}()
	el, ok := node.Node().DefaultChild().(awscdk.CfnElement)
	if !ok {
		return ""
	}
	return *d.Stack.GetLogicalId(el)
}

// LogicalIDs returns the logical ID of every resource of the stack that has
// one, keyed by resource ID.
func (d *Definition) LogicalIDs() map[resourceid.ID]string {
	out := make(map[resourceid.ID]string, len(d.nodes))
	for id := range d.nodes {
		if logicalID := d.LogicalID(id); logicalID != "" {
			out[id] = logicalID
		}
	}
	return out
}

// Synth writes the cloud assembly. With FormatYAML a YAML rendering of the
// template is written next to the JSON one the manifest points at.
func (d *Definition) Synth(ctx context.Context, format Format) (asm *Assembly, err error) {
	logger := ctxlog.FromContext(ctx).With("stack", d.st.Name)
	defer recoverJSII(&err, "failed to synthesize stack %s", d.st.Name)

	cloud := d.App.Synth(nil)
	artifact := cloud.GetStackArtifact(d.Stack.ArtifactId())

	asm = &Assembly{
		Dir:          *cloud.Directory(),
		TemplateFile: *artifact.TemplateFile(),
		ManifestFile: ManifestFile,
	}
	if tmpl, ok := artifact.Template().(map[string]interface{}); ok {
		if resources, ok := tmpl["Resources"].(map[string]interface{}); ok {
			asm.Resources = len(resources)
		}
	}
	if err := asm.readAssets(); err != nil {
		return nil, err
	}

	if format == FormatYAML {
		asm.YAMLTemplateFile = TemplateFileName(d.st.Name, FormatYAML)
		if err := convertToYAML(asm.path(asm.TemplateFile), asm.path(asm.YAMLTemplateFile)); err != nil {
			return nil, err
		}
	}

	logger.Info("Cloud assembly written.", "dir", asm.Dir, "template", asm.TemplateFile, "assets", len(asm.AssetFiles))
	return asm, nil
}

// recoverJSII turns a panic raised by the jsii runtime into an error.
func recoverJSII(err *error, format string, args ...any) {
	if r := recover(); r != nil {
		*err = fmt.Errorf(format+": %v", append(args, r)...)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return jsii.String(s)
}
