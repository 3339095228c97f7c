// Package stack holds the typed construct model of a resolved stack.
//
// Unlike the config package, every reference between resources is a pointer
// to the referenced construct, defaults are applied and symbolic values (build
// images, encryption modes) are normalised. The model is produced by the
// builder package and consumed by validate and synth.
//
// The name of each resource becomes its construct ID in the synthesized
// stack, so logical IDs stay stable across renames of unrelated resources.
package stack
