package stack

import (
	"github.com/vk/pipestack/internal/resourceid"
)

// DefaultQualifier selects the default bootstrap resources of an environment.
const DefaultQualifier = "hnb659fds"

// Stack is a resolved stack: every construct with its references linked.
type Stack struct {
	Name        string
	Description string
	Account     string
	Region      string
	Qualifier   string
	Tags        map[string]string

	Assets       []*Asset
	Buckets      []*Bucket
	Repositories []*Repository
	Roles        []*Role
	Projects     []*Project
	Pipelines    []*Pipeline
	Outputs      []*Output
}

// Resources returns every construct grouped by kind, in declaration order
// within a kind.
func (s *Stack) Resources() []Resource {
	var out []Resource
	for _, a := range s.Assets {
		out = append(out, a)
	}
	for _, b := range s.Buckets {
		out = append(out, b)
	}
	for _, r := range s.Repositories {
		out = append(out, r)
	}
	for _, r := range s.Roles {
		out = append(out, r)
	}
	for _, p := range s.Projects {
		out = append(out, p)
	}
	for _, p := range s.Pipelines {
		out = append(out, p)
	}
	return out
}

// Lookup finds a construct by its ID. The attribute of the ID is ignored.
func (s *Stack) Lookup(id resourceid.ID) (Resource, bool) {
	base := id.Base()
	for _, r := range s.Resources() {
		if r.ID() == base {
			return r, true
		}
	}
	return nil, false
}

// ProjectsUsingRole returns the projects that run as the given role.
func (s *Stack) ProjectsUsingRole(role *Role) []*Project {
	var out []*Project
	for _, p := range s.Projects {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// PipelinesUsingRole returns the pipelines that run as the given role.
func (s *Stack) PipelinesUsingRole(role *Role) []*Pipeline {
	var out []*Pipeline
	for _, p := range s.Pipelines {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// attributes lists the referenceable output attributes of each kind.
var attributes = map[resourceid.Kind][]string{
	resourceid.KindBucket:     {"arn", "domain_name", "name"},
	resourceid.KindRepository: {"arn", "clone_url_http", "clone_url_ssh", "name"},
	resourceid.KindRole:       {"arn", "name", "role_id"},
	resourceid.KindProject:    {"arn", "name"},
	resourceid.KindPipeline:   {"name", "version"},
}

// HasAttribute reports whether a kind exposes an output attribute. An empty
// attribute selects the default reference value of any kind with attributes.
func HasAttribute(kind resourceid.Kind, attr string) bool {
	attrs, ok := attributes[kind]
	if !ok {
		return false
	}
	if attr == "" {
		return true
	}
	for _, a := range attrs {
		if a == attr {
			return true
		}
	}
	return false
}

// AttributeNames lists the output attributes of a kind, sorted.
func AttributeNames(kind resourceid.Kind) []string {
	return append([]string(nil), attributes[kind]...)
}
