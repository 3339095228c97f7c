package resourceid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// nameRegex matches block labels usable as resource names.
var nameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// attrRegex matches attribute names.
var attrRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidName reports whether name can be used as a resource name.
func ValidName(name string) bool {
	return nameRegex.MatchString(name)
}

// String serializes the ID into its canonical string representation.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	if id.Attribute == "" {
		return string(id.Kind) + "." + id.Name
	}
	return string(id.Kind) + "." + id.Name + "." + id.Attribute
}

// Parse creates a new ID by parsing its canonical string representation.
func Parse(raw string) (ID, error) {
	if raw == "" {
		return ID{}, fmt.Errorf("identifier cannot be empty")
	}

	parts := strings.Split(raw, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return ID{}, fmt.Errorf("invalid identifier %q: expected kind.name or kind.name.attribute", raw)
	}
	for _, p := range parts {
		if p == "" {
			return ID{}, fmt.Errorf("identifier %q contains empty segment", raw)
		}
	}

	kind := Kind(parts[0])
	if !kind.Valid() {
		return ID{}, fmt.Errorf("unknown resource kind %q in %q", parts[0], raw)
	}
	if !ValidName(parts[1]) {
		return ID{}, fmt.Errorf("invalid resource name %q in %q", parts[1], raw)
	}

	id := ID{Kind: kind, Name: parts[1]}
	if len(parts) == 3 {
		if !attrRegex.MatchString(parts[2]) {
			return ID{}, fmt.Errorf("invalid attribute name %q in %q", parts[2], raw)
		}
		id.Attribute = parts[2]
	}
	return id, nil
}

// FromTraversal converts an absolute HCL traversal such as
// `bucket.ArtifactBucket.arn` into an ID.
func FromTraversal(t hcl.Traversal) (ID, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	rng := t.SourceRange()

	invalid := func(detail string) (ID, hcl.Diagnostics) {
		return ID{}, append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid resource reference",
			Detail:   detail,
			Subject:  &rng,
		})
	}

	if len(t) < 2 || len(t) > 3 {
		return invalid("A reference must have the form kind.name or kind.name.attribute, e.g. bucket.ArtifactBucket.")
	}

	kind := Kind(t.RootName())
	if !kind.Valid() {
		return invalid(fmt.Sprintf("The kind %q is not a referenceable resource kind.", t.RootName()))
	}

	nameAttr, ok := t[1].(hcl.TraverseAttr)
	if !ok {
		return invalid("The resource name must be given with dot syntax, not an index.")
	}
	id := ID{Kind: kind, Name: nameAttr.Name}

	if len(t) == 3 {
		attr, ok := t[2].(hcl.TraverseAttr)
		if !ok {
			return invalid("The resource attribute must be given with dot syntax, not an index.")
		}
		id.Attribute = attr.Name
	}
	return id, diags
}

// FromExpr converts a bare reference expression into an ID.
func FromExpr(expr hcl.Expression) (ID, hcl.Diagnostics) {
	t, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() {
		return ID{}, diags
	}
	return FromTraversal(t)
}
