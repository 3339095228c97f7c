package resourceid

// Kind is the block type a resource is declared with.
type Kind string

const (
	KindAsset      Kind = "asset"
	KindBucket     Kind = "bucket"
	KindRepository Kind = "repository"
	KindRole       Kind = "role"
	KindProject    Kind = "project"
	KindPipeline   Kind = "pipeline"
)

// Kinds lists every referenceable kind in declaration order.
var Kinds = []Kind{KindAsset, KindBucket, KindRepository, KindRole, KindProject, KindPipeline}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ID is the structured representation of a resource reference.
type ID struct {
	Kind Kind
	Name string
	// Attribute is optional and names an output attribute of the resource,
	// e.g. `arn` or `clone_url_http`.
	Attribute string
}

// New returns an ID without an attribute.
func New(kind Kind, name string) ID {
	return ID{Kind: kind, Name: name}
}

// Base returns the ID with the attribute stripped.
func (id ID) Base() ID {
	return ID{Kind: id.Kind, Name: id.Name}
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.Kind == "" && id.Name == ""
}
