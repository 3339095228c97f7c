package hcl_adapter

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/resourceid"
)

// isExprDefined checks if an HCL expression was actually present in the source
// code. The HCL decoder populates omitted optional fields with non-nil,
// zero-width expression objects, so a simple nil check is insufficient.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	logger := ctxlog.FromContext(ctx)

	if expr == nil {
		logger.Debug("Expression is nil, considering it undefined.", "attribute", attrName)
		return false
	}

	// A real attribute occupies bytes in the file, while a placeholder for an
	// omitted optional attribute has a zero-width range.
	exprRange := expr.Range()
	isDefined := exprRange.End.Byte > exprRange.Start.Byte

	logger.Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", exprRange.String(),
		"is_defined", isDefined,
	)

	return isDefined
}

// optionalRef converts an optional reference attribute. It returns nil when
// the attribute was omitted.
func optionalRef(ctx context.Context, expr hcl.Expression, attrName string, want resourceid.Kind) (*resourceid.ID, hcl.Diagnostics) {
	if !isExprDefined(ctx, expr, attrName) {
		return nil, nil
	}
	return requiredRef(expr, attrName, want)
}

// requiredRef converts a reference attribute and checks that it points at
// a resource of the wanted kind. Attribute suffixes are not allowed here.
func requiredRef(expr hcl.Expression, attrName string, want resourceid.Kind) (*resourceid.ID, hcl.Diagnostics) {
	id, diags := resourceid.FromExpr(expr)
	if diags.HasErrors() {
		return nil, diags
	}
	if id.Kind != want || id.Attribute != "" {
		return nil, hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid reference kind",
			Detail:   "The \"" + attrName + "\" attribute must reference a " + string(want) + ", e.g. " + string(want) + ".Name; got " + id.String() + ".",
			Subject:  expr.Range().Ptr(),
		}}
	}
	return &id, nil
}

// findUniqueBlock searches a slice of blocks for the block of a given type.
// It returns a diagnostic error if more than one block of that type is found.
// If no block is found, it returns nil.
func findUniqueBlock(blocks hcl.Blocks, blockType string) (*hcl.Block, hcl.Diagnostics) {
	var found *hcl.Block
	var diags hcl.Diagnostics

	for _, block := range blocks {
		if block.Type != blockType {
			continue
		}
		if found != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"" + blockType + "\" block",
				Detail:   "Only one \"" + blockType + "\" block is allowed; the first was declared at " + found.DefRange.String() + ".",
				Subject:  &block.DefRange,
			})
			continue
		}
		found = block
	}

	return found, diags
}
