package app

import (
	"context"
	"fmt"

	"github.com/vk/pipestack/internal/scaffold"
)

// Init writes a starter stack file into dir.
func (a *App) Init(ctx context.Context, dir string, opts scaffold.Options) (string, error) {
	path, err := scaffold.Write(a.context(ctx), dir, opts)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(a.outW, "Created %s\n", path)
	return path, nil
}
