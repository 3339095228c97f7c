// Package config defines the format-agnostic model of a declared stack and
// the Loader interface that format adapters implement. Scalar attributes are
// already evaluated; references between resources stay symbolic
// (resourceid.ID) until the builder resolves them.
package config
