// Package validate checks a resolved stack against the configuration rules
// a deployable pipeline has to satisfy.
//
// Rules report findings through a Context, which tracks the resource being
// inspected. Findings are either errors, which fail validation, or warnings,
// which are only reported.
package validate
