// Package dag holds the dependency graph of a stack. Nodes are resource
// addresses; an edge from A to B means B depends on A and must be
// provisioned after it. The graph answers the questions a deployment
// engine asks: is it acyclic, in which order can resources be created,
// and which resources can be created side by side.
package dag
