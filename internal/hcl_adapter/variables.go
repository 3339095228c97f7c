package hcl_adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/pipestack/internal/config"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions is the set of functions callable from stack files.
var functions = map[string]function.Function{
	"coalesce":  stdlib.CoalesceFunc,
	"concat":    stdlib.ConcatFunc,
	"format":    stdlib.FormatFunc,
	"join":      stdlib.JoinFunc,
	"length":    stdlib.LengthFunc,
	"lower":     stdlib.LowerFunc,
	"merge":     stdlib.MergeFunc,
	"replace":   stdlib.ReplaceFunc,
	"split":     stdlib.SplitFunc,
	"tobool":    stdlib.MakeToFunc(cty.Bool),
	"tonumber":  stdlib.MakeToFunc(cty.Number),
	"tostring":  stdlib.MakeToFunc(cty.String),
	"trimspace": stdlib.TrimSpaceFunc,
	"upper":     stdlib.UpperFunc,
}

// collectVariables decodes every `variable` block across the parsed files and
// resolves its effective value from the default and the overrides.
func (l *Loader) collectVariables(ctx context.Context, files []*hcl.File) (map[string]*config.Variable, error) {
	logger := ctxlog.FromContext(ctx)
	vars := make(map[string]*config.Variable)

	for _, file := range files {
		content, _, diags := file.Body.PartialContent(variableOnlySchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to read variables: %w", diags)
		}

		for _, block := range content.Blocks {
			name := block.Labels[0]
			if prev, exists := vars[name]; exists {
				return nil, fmt.Errorf("%s: duplicate variable %q; previously declared at %s", block.DefRange, name, prev.DeclRange)
			}

			var vb variableBlock
			if diags := gohcl.DecodeBody(block.Body, nil, &vb); diags.HasErrors() {
				return nil, fmt.Errorf("failed to decode variable %q: %w", name, diags)
			}

			v, err := l.resolveVariable(ctx, name, &vb, block.DefRange)
			if err != nil {
				return nil, err
			}
			vars[name] = v
			logger.Debug("Variable resolved.", "name", name, "type", v.Type.FriendlyName())
		}
	}

	for name := range l.overrides {
		if _, ok := vars[name]; !ok {
			return nil, fmt.Errorf("value given for undeclared variable %q", name)
		}
	}

	return vars, nil
}

func (l *Loader) resolveVariable(ctx context.Context, name string, vb *variableBlock, rng hcl.Range) (*config.Variable, error) {
	ty := cty.DynamicPseudoType
	if isExprDefined(ctx, vb.Type, "type") {
		parsed, diags := typeexpr.TypeConstraint(vb.Type)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid type for variable %q: %w", name, diags)
		}
		ty = parsed
	}

	var val cty.Value
	if raw, ok := l.overrides[name]; ok {
		parsed, err := parseOverride(raw, ty)
		if err != nil {
			return nil, fmt.Errorf("invalid value for variable %q: %w", name, err)
		}
		val = parsed
	} else if isExprDefined(ctx, vb.Default, "default") {
		def, diags := vb.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default for variable %q: %w", name, diags)
		}
		converted, err := convert.Convert(def, ty)
		if err != nil {
			return nil, fmt.Errorf("default for variable %q does not match its type %s: %w", name, ty.FriendlyName(), err)
		}
		val = converted
	} else {
		return nil, fmt.Errorf("%s: variable %q has no default and no value was given", rng, name)
	}

	return &config.Variable{
		Name:        name,
		Description: vb.Description,
		Type:        ty,
		Value:       val,
		DeclRange:   rng,
	}, nil
}

// parseOverride turns a command-line value into a cty.Value of the wanted type.
// Primitive types take the raw text; complex types are parsed as an HCL expression.
func parseOverride(raw string, ty cty.Type) (cty.Value, error) {
	if ty == cty.DynamicPseudoType || ty.IsPrimitiveType() {
		val := cty.StringVal(raw)
		if ty == cty.DynamicPseudoType {
			return val, nil
		}
		return convert.Convert(val, ty)
	}

	expr, diags := hclsyntax.ParseExpression([]byte(raw), "<override>", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	return convert.Convert(val, ty)
}

// newEvalContext exposes the resolved variables as `var.<name>` together
// with the function table.
func newEvalContext(vars map[string]*config.Variable) *hcl.EvalContext {
	values := make(map[string]cty.Value, len(vars))
	for name, v := range vars {
		values[name] = v.Value
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(values),
		},
		Functions: functions,
	}
}

// ParseOverrides turns `name=value` pairs into an override map.
func ParseOverrides(pairs []string) (map[string]string, error) {
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable assignment %q: expected name=value", pair)
		}
		overrides[name] = value
	}
	return overrides, nil
}

// sortedVariableNames is used for stable diagnostics output.
func sortedVariableNames(vars map[string]*config.Variable) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
