package app

import (
	"context"
	"fmt"
	"strings"
)

// Graph prints the dependency graph of the stack: the creation order and its
// levels, or the DOT rendering when dot is set.
func (a *App) Graph(ctx context.Context, dot bool) error {
	st, graph, err := a.Load(ctx)
	if err != nil {
		return err
	}
	if dot {
		return graph.WriteDOT(a.outW, st.Name)
	}

	levels, err := graph.Levels()
	if err != nil {
		return err
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.outW, "Stack %s: %d resources in %d levels\n", st.Name, graph.Len(), len(levels))
	for i, level := range levels {
		fmt.Fprintf(a.outW, "  level %d: %s\n", i, strings.Join(level, ", "))
	}
	fmt.Fprintln(a.outW, "Order:")
	for i, id := range order {
		fmt.Fprintf(a.outW, "  %d. %s\n", i+1, id)
	}
	return nil
}
