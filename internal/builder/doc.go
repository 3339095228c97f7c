/*
Package builder turns a declared configuration model into a resolved stack
and its dependency graph.

The construction is a multi-phase process:

 1. Construct Creation: every declared resource becomes a typed construct
    from the stack package, with defaults applied and symbolic values (build
    images, compute types, encryption modes) normalised. Nothing is linked yet,
    so declaration order across files does not matter.

 2. Reference Resolution: every reference of the model is looked up among the
    constructs. A reference to an undeclared resource, or to a resource of the
    wrong kind, is an error naming the referring resource. Projects and
    pipelines without an explicit role get a generated one, and pipeline
    actions without outputs get an implicitly named artifact.

 3. Graph Construction: each construct becomes a node of a dag.Graph and every
    reference an edge from the referenced construct to the referring one. The
    graph is checked for cycles before it is returned.

The builder does not judge whether the resolved stack is sensible; that is the
job of the validate package.
*/
package builder
