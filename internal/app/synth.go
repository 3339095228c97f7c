package app

import (
	"context"
	"fmt"

	"github.com/vk/pipestack/internal/asset"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/stack"
	"github.com/vk/pipestack/internal/synth"
	"github.com/vk/pipestack/internal/validate"
)

// DefaultOutDir is where the cloud assembly is written unless told otherwise.
const DefaultOutDir = "stack.out"

// SynthOptions controls the synth command.
type SynthOptions struct {
	OutDir string
	Format synth.Format
}

// Synth validates the stack, packages its assets and writes the cloud
// assembly. Validation errors stop synthesis; warnings are logged.
func (a *App) Synth(ctx context.Context, opts SynthOptions) (*synth.Assembly, error) {
	if opts.OutDir == "" {
		opts.OutDir = DefaultOutDir
	}
	if opts.Format == "" {
		opts.Format = synth.FormatJSON
	}

	st, _, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	ctx, logger := ctxlog.With(a.context(ctx), "stack", st.Name)

	report := validate.Validate(ctx, st)
	for _, f := range report.Warnings() {
		logger.Warn("Validation warning.", "rule", f.Rule, "resource", f.Resource, "message", f.Message)
	}
	if err := report.Err(); err != nil {
		return nil, err
	}

	archives, err := packageAssets(ctx, st)
	if err != nil {
		return nil, err
	}
	d, err := synth.Define(ctx, st, archives, opts.OutDir)
	if err != nil {
		return nil, err
	}
	asm, err := d.Synth(ctx, opts.Format)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.outW, "Synthesized %s: %d resources, %d assets\n", st.Name, asm.Resources, len(asm.AssetFiles))
	fmt.Fprintf(a.outW, "  template: %s\n", asm.TemplateFile)
	if asm.YAMLTemplateFile != "" {
		fmt.Fprintf(a.outW, "  template: %s\n", asm.YAMLTemplateFile)
	}
	for _, f := range asm.AssetFiles {
		fmt.Fprintf(a.outW, "  asset:    %s\n", f)
	}
	fmt.Fprintf(a.outW, "Cloud assembly written to %s\n", asm.Dir)
	return asm, nil
}

// packageAssets packages every asset of the stack, keyed by asset name.
func packageAssets(ctx context.Context, st *stack.Stack) (map[string]*asset.Archive, error) {
	archives := make(map[string]*asset.Archive, len(st.Assets))
	for _, sa := range st.Assets {
		archive, err := asset.Package(ctx, sa)
		if err != nil {
			return nil, err
		}
		archives[sa.Name] = archive
	}
	return archives, nil
}
