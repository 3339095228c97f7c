package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/pipestack/internal/config"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	overrides map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

// WithVariables sets values for declared variables, taking precedence over
// their defaults. Values are converted to the variable's declared type.
func WithVariables(overrides map[string]string) Option {
	return func(l *Loader) {
		for k, v := range overrides {
			l.overrides[k] = v
		}
	}
}

// NewLoader creates a new HCL configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{overrides: make(map[string]string)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load orchestrates the entire HCL configuration loading process: it finds
// every .hcl file under the given paths, resolves variables, then decodes
// and translates every block into the model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	filenames, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(filenames) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(filenames))

	parser := hclparse.NewParser()
	files := make([]*hcl.File, 0, len(filenames))
	for _, name := range filenames {
		f, diags := parser.ParseHCLFile(name)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", name, diags)
		}
		files = append(files, f)
	}

	vars, err := l.collectVariables(ctx, files)
	if err != nil {
		return nil, err
	}
	logger.Debug("Variables collected.", "names", sortedVariableNames(vars))

	model := config.NewModel()
	model.Variables = vars
	model.Files = filenames

	t := newTranslator(ctx, newEvalContext(vars))
	for i, f := range files {
		content, diags := f.Body.Content(rootSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", filenames[i], diags)
		}
		if err := t.translateFile(filenames[i], content, model); err != nil {
			return nil, err
		}
	}

	logger.Debug("HCL loading complete.",
		"assets", len(model.Assets),
		"buckets", len(model.Buckets),
		"repositories", len(model.Repositories),
		"roles", len(model.Roles),
		"projects", len(model.Projects),
		"pipelines", len(model.Pipelines),
		"outputs", len(model.Outputs),
	)
	return model, nil
}

// findAllHCLFiles walks all given paths and returns a flat, de-duplicated
// list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		for _, f := range found {
			if _, wasSeen := seen[f]; wasSeen {
				continue
			}
			seen[f] = struct{}{}
			allFiles = append(allFiles, f)
		}
	}
	return allFiles, nil
}
