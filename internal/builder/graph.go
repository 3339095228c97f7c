package builder

import (
	"context"
	"fmt"

	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/dag"
	"github.com/vk/pipestack/internal/stack"
)

// buildGraph adds a node per construct and an edge from every referenced
// construct to the construct referring to it.
func buildGraph(ctx context.Context, st *stack.Stack) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	g := dag.New()

	resources := st.Resources()
	for _, r := range resources {
		g.AddNode(r.ID().String())
	}

	for _, r := range resources {
		for _, dep := range r.References() {
			logger.Debug("Linking dependency.", "from", dep.String(), "to", r.ID().String())
			if err := g.AddEdge(dep.String(), r.ID().String()); err != nil {
				return nil, fmt.Errorf("error linking %s to %s: %w", r.ID(), dep, err)
			}
		}
	}
	return g, nil
}
