package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vk/pipestack/internal/synth"
)

// ResourceInfo describes one construct of the stack.
type ResourceInfo struct {
	ID        string   `json:"id" yaml:"id"`
	Kind      string   `json:"kind" yaml:"kind"`
	Name      string   `json:"name" yaml:"name"`
	LogicalID string   `json:"logical_id" yaml:"logical_id"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// List prints every construct of the stack in dependency order. Logical IDs
// come from a construct tree defined into a scratch directory.
func (a *App) List(ctx context.Context, output string) ([]ResourceInfo, error) {
	st, graph, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	ctx = a.context(ctx)

	archives, err := packageAssets(ctx, st)
	if err != nil {
		return nil, err
	}
	scratch, err := os.MkdirTemp("", "pipestack-list-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)
	d, err := synth.Define(ctx, st, archives, scratch)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]ResourceInfo)
	for _, r := range st.Resources() {
		id := r.ID()
		info := ResourceInfo{ID: id.String(), Kind: string(id.Kind), Name: id.Name, LogicalID: d.LogicalID(id)}
		for _, dep := range r.References() {
			info.DependsOn = append(info.DependsOn, dep.String())
		}
		byID[info.ID] = info
	}
	infos := make([]ResourceInfo, 0, len(order))
	for _, id := range order {
		infos = append(infos, byID[id])
	}

	if output != OutputTable {
		return infos, writeStructured(a.outW, output, infos)
	}
	t := newTable(table.Row{"Kind", "Name", "Logical ID", "Depends On"})
	for _, info := range infos {
		t.AppendRow(table.Row{info.Kind, info.Name, info.LogicalID, strings.Join(info.DependsOn, ", ")})
	}
	return infos, writeTable(a.outW, t)
}
