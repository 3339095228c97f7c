/*
Package synth turns a resolved stack into AWS CDK constructs and synthesizes
them into the cloud assembly consumed by the deployment engine.

Define builds the construct tree: every resource of the stack becomes the
matching L2 construct, named after the resource, so logical IDs and the
generated least-privilege default policies are the ones the CDK computes.
Generated roles are left to the project or pipeline that owns them, and every
pipeline action runs as the pipeline role.

Synth writes the assembly. The directory contains:

  - <Stack>.template.json: the template itself, plus <Stack>.template.yaml
    when the YAML format is requested.
  - <Stack>.assets.json: the manifest of files to publish before deployment.
  - manifest.json: the list of artifacts in the assembly.
  - asset.<hash>.zip: every packaged asset referenced by the template.

The CDK runs on the jsii runtime, which reports failures by panicking. Define,
Synth and the manifest readers turn those panics into errors.
*/
package synth
