package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vk/pipestack/internal/publish"
	"gopkg.in/yaml.v3"
)

// PublishOptions controls the publish command.
type PublishOptions struct {
	AssemblyDir string
	// URLs are pre-signed upload URLs keyed by object key.
	URLs map[string]string
	// URLsFile is a JSON or YAML map of object key to URL, merged under URLs.
	URLsFile  string
	Publisher *publish.Publisher
}

// Publish uploads the file assets of a written assembly.
func (a *App) Publish(ctx context.Context, opts PublishOptions) ([]publish.Result, error) {
	ctx = a.context(ctx)
	if opts.AssemblyDir == "" {
		opts.AssemblyDir = DefaultOutDir
	}
	if opts.Publisher == nil {
		opts.Publisher = publish.New()
	}

	urls := make(map[string]string)
	if opts.URLsFile != "" {
		fromFile, err := readURLsFile(opts.URLsFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			urls[k] = v
		}
	}
	for k, v := range opts.URLs {
		urls[k] = v
	}

	uploads, err := publish.Plan(opts.AssemblyDir, urls)
	if err != nil {
		return nil, err
	}
	results, err := opts.Publisher.Publish(ctx, uploads)

	t := newTable(table.Row{"Object", "Status", "Size", "Attempts"})
	for _, r := range results {
		t.AppendRow(table.Row{r.ObjectKey, r.Status, r.Size, r.Attempts})
	}
	if len(results) > 0 {
		if werr := writeTable(a.outW, t); werr != nil && err == nil {
			err = werr
		}
	}
	return results, err
}

// readURLsFile reads a map of object key to URL. JSON is valid YAML, so one
// decoder serves both.
func readURLsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read URLs file: %w", err)
	}
	var urls map[string]string
	if err := yaml.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("failed to parse URLs file %s: %w", path, err)
	}
	return urls, nil
}
