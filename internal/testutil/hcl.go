package testutil

import (
	"path/filepath"
	"testing"
)

// ReferenceStackHCL declares the source -> build -> artifact storage pipeline
// used throughout the tests. The seed asset is expected at java-project.zip
// next to the file.
const ReferenceStackHCL = `
stack "FinalStack" {
  description = "Automated software delivery pipeline"
}

variable "repository_name" {
  type    = string
  default = "java-project"
}

asset "JavaProjectZip" {
  path = "java-project.zip"
}

bucket "ArtifactBucket" {
  encryption = "S3_MANAGED"
}

repository "AppCodeCommitRepository" {
  repository_name = var.repository_name
  description     = "An automated software delivery pipeline"
  code            = asset.JavaProjectZip
}

role "AppBuildRole" {
  assumed_by       = ["codebuild.amazonaws.com"]
  managed_policies = ["AdministratorAccess"]
}

role "CodePipelineServiceRole" {
  assumed_by       = ["codepipeline.amazonaws.com"]
  managed_policies = ["AdministratorAccess"]
}

project "AppBuildProject" {
  source      = repository.AppCodeCommitRepository
  build_image = "STANDARD_5_0"
  role        = role.AppBuildRole

  artifacts {
    bucket           = bucket.ArtifactBucket
    name             = "artifact.zip"
    include_build_id = false
    package_zip      = true
  }
}

pipeline "AppPipeline" {
  artifact_bucket = bucket.ArtifactBucket
  role            = role.CodePipelineServiceRole

  stage "Source" {
    action "SourceAction" {
      type       = "codecommit_source"
      repository = repository.AppCodeCommitRepository
      outputs    = ["SourceOutput"]
    }
  }

  stage "Build" {
    action "BuildAction" {
      type    = "codebuild"
      project = project.AppBuildProject
      inputs  = ["SourceOutput"]
      outputs = ["BuildOutput"]
    }
  }
}

output "RepositoryCloneUrl" {
  value       = repository.AppCodeCommitRepository.clone_url_http
  description = "HTTPS clone URL of the source repository"
}
`

// WriteReferenceStack writes ReferenceStackHCL and its seed asset into a
// temporary directory and returns the directory.
func WriteReferenceStack(t *testing.T) string {
	t.Helper()
	return WriteStack(t, ReferenceStackHCL)
}

// WriteStack writes the given HCL as stack.hcl next to a java-project.zip
// seed asset and returns the directory.
func WriteStack(t *testing.T, stackHCL string) string {
	t.Helper()

	dir := WriteFiles(t, map[string]string{"stack.hcl": stackHCL})
	WriteZip(t, filepath.Join(dir, "java-project.zip"), map[string]string{
		"pom.xml":                "<project/>",
		"src/main/java/App.java": "class App {}",
		"buildspec.yml":          "version: 0.2\n",
	})
	return dir
}
