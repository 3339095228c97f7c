/*
Package resourceid provides a structured, type-safe representation for
resource references within a stack, based on the canonical format
`kind.name[.attribute]`.

Examples: `bucket.ArtifactBucket`, `repository.AppRepo.clone_url_http`.

This package enforces the identifier schema and centralizes all
formatting and parsing logic, so the loader, the builder and the
synthesizer agree on what a reference looks like.
*/
package resourceid
