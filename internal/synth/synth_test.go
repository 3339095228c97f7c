package synth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pipestack/internal/asset"
	"github.com/vk/pipestack/internal/builder"
	"github.com/vk/pipestack/internal/hcl_adapter"
	"github.com/vk/pipestack/internal/resourceid"
	"github.com/vk/pipestack/internal/stack"
	"github.com/vk/pipestack/internal/testutil"
	"gopkg.in/yaml.v3"
)

// define loads the stack in dir, packages its assets and defines it into a
// fresh assembly directory.
func define(t *testing.T, dir string) (*Definition, *stack.Stack, map[string]*asset.Archive, string) {
	t.Helper()
	ctx, _ := testutil.NewContext(t)

	model, err := hcl_adapter.NewLoader().Load(ctx, dir)
	require.NoError(t, err)
	st, _, err := builder.Build(ctx, model)
	require.NoError(t, err)

	archives := make(map[string]*asset.Archive)
	for _, a := range st.Assets {
		archive, err := asset.Package(ctx, a)
		require.NoError(t, err)
		archives[a.Name] = archive
	}

	outDir := filepath.Join(t.TempDir(), "stack.out")
	d, err := Define(ctx, st, archives, outDir)
	require.NoError(t, err)
	return d, st, archives, outDir
}

func TestDefine_ReferenceStack(t *testing.T) {
	d, _, _, _ := define(t, testutil.WriteReferenceStack(t))
	template := assertions.Template_FromStack(d.Stack, nil)

	template.ResourceCountIs(jsii.String("AWS::S3::Bucket"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::CodeCommit::Repository"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::CodeBuild::Project"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Events::Rule"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::CodePipeline::Pipeline"), jsii.Number(1))

	template.HasResourceProperties(jsii.String("AWS::S3::Bucket"), map[string]interface{}{
		"BucketEncryption": map[string]interface{}{
			"ServerSideEncryptionConfiguration": []interface{}{
				map[string]interface{}{
					"ServerSideEncryptionByDefault": map[string]interface{}{"SSEAlgorithm": "AES256"},
				},
			},
		},
	})
	template.HasResource(jsii.String("AWS::S3::Bucket"), map[string]interface{}{
		"DeletionPolicy": "Retain",
	})

	template.HasResourceProperties(jsii.String("AWS::CodeCommit::Repository"), map[string]interface{}{
		"RepositoryName":        "java-project",
		"RepositoryDescription": "An automated software delivery pipeline",
		"Code":                  assertions.Match_ObjectLike(&map[string]interface{}{"BranchName": "main"}),
	})

	template.HasResourceProperties(jsii.String("AWS::IAM::Role"), map[string]interface{}{
		"AssumeRolePolicyDocument": assertions.Match_ObjectLike(&map[string]interface{}{
			"Statement": []interface{}{
				assertions.Match_ObjectLike(&map[string]interface{}{
					"Principal": map[string]interface{}{"Service": "codebuild.amazonaws.com"},
				}),
			},
		}),
		"ManagedPolicyArns": assertions.Match_AnyValue(),
	})

	template.HasResourceProperties(jsii.String("AWS::CodeBuild::Project"), map[string]interface{}{
		"Artifacts": assertions.Match_ObjectLike(&map[string]interface{}{
			"Type":          "S3",
			"Name":          "artifact.zip",
			"NamespaceType": "NONE",
			"Packaging":     "ZIP",
		}),
		"Environment": assertions.Match_ObjectLike(&map[string]interface{}{
			"Image":       "aws/codebuild/standard:5.0",
			"ComputeType": "BUILD_GENERAL1_SMALL",
		}),
		"Source": assertions.Match_ObjectLike(&map[string]interface{}{"Type": "CODECOMMIT"}),
	})

	template.HasResourceProperties(jsii.String("AWS::CodePipeline::Pipeline"), map[string]interface{}{
		"Stages": []interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"Name": "Source",
				"Actions": []interface{}{
					assertions.Match_ObjectLike(&map[string]interface{}{
						"Name":            "SourceAction",
						"OutputArtifacts": []interface{}{map[string]interface{}{"Name": "SourceOutput"}},
						"RunOrder":        1,
					}),
				},
			}),
			assertions.Match_ObjectLike(&map[string]interface{}{
				"Name": "Build",
				"Actions": []interface{}{
					assertions.Match_ObjectLike(&map[string]interface{}{
						"Name":            "BuildAction",
						"InputArtifacts":  []interface{}{map[string]interface{}{"Name": "SourceOutput"}},
						"OutputArtifacts": []interface{}{map[string]interface{}{"Name": "BuildOutput"}},
					}),
				},
			}),
		},
	})

	template.HasOutput(jsii.String("RepositoryCloneUrl"), map[string]interface{}{
		"Description": "HTTPS clone URL of the source repository",
		"Value": map[string]interface{}{
			"Fn::GetAtt": []interface{}{
				d.LogicalID(resourceid.New(resourceid.KindRepository, "AppCodeCommitRepository")),
				"CloneUrlHttp",
			},
		},
	})
}

func TestDefine_PolicyNamesMatchLogicalIDs(t *testing.T) {
	d, _, _, _ := define(t, testutil.WriteReferenceStack(t))
	template := assertions.Template_FromStack(d.Stack, nil)

	policies := *template.FindResources(jsii.String("AWS::IAM::Policy"), nil)
	require.NotEmpty(t, policies)
	for logicalID, policy := range policies {
		props, ok := (*policy)["Properties"].(map[string]interface{})
		require.True(t, ok, logicalID)
		assert.Equal(t, logicalID, props["PolicyName"], "policy %s", logicalID)
	}
}

func TestDefinition_LogicalID(t *testing.T) {
	d, _, _, _ := define(t, testutil.WriteReferenceStack(t))

	assert.Equal(t, "ArtifactBucket7410C9EF", d.LogicalID(resourceid.New(resourceid.KindBucket, "ArtifactBucket")))
	assert.Equal(t, "AppPipelineD5FE1B37", d.LogicalID(resourceid.New(resourceid.KindPipeline, "AppPipeline")))
	assert.Equal(t, "ArtifactBucket7410C9EF", d.LogicalID(resourceid.ID{Kind: resourceid.KindBucket, Name: "ArtifactBucket", Attribute: "arn"}))
	assert.Empty(t, d.LogicalID(resourceid.New(resourceid.KindAsset, "JavaProjectZip")), "assets have no template resource")
	assert.Empty(t, d.LogicalID(resourceid.New(resourceid.KindBucket, "Missing")))

	ids := d.LogicalIDs()
	assert.Len(t, ids, 6)
	for id, logicalID := range ids {
		assert.True(t, strings.HasPrefix(logicalID, id.Name), "%s has logical ID %s", id, logicalID)
	}
}

const generatedRolesHCL = `
stack "Generated" {}

bucket "Artifacts" {}

repository "Code" {
  repository_name = "code"
}

project "Build" {
  source = repository.Code
  buildspec = <<-EOT
    version: 0.2
    phases:
      build:
        commands:
          - make
  EOT
  environment = {
    STAGE = "test"
  }
}

pipeline "Release" {
  artifact_bucket = bucket.Artifacts

  stage "Source" {
    action "Checkout" {
      type       = "codecommit_source"
      repository = repository.Code
      trigger    = "poll"
      outputs    = ["Src"]
    }
  }

  stage "Build" {
    action "Compile" {
      type    = "codebuild"
      project = project.Build
      inputs  = ["Src"]
    }
  }

  stage "Deploy" {
    action "Approve" {
      type = "manual_approval"
    }
    action "Upload" {
      type      = "s3_deploy"
      bucket    = bucket.Artifacts
      inputs    = ["Src"]
      run_order = 2
    }
  }
}

output "BuildRoleArn" {
  value = role.BuildRole.arn
}
`

func TestDefine_GeneratedRoles(t *testing.T) {
	d, _, _, _ := define(t, testutil.WriteStack(t, generatedRolesHCL))
	template := assertions.Template_FromStack(d.Stack, nil)

	template.ResourceCountIs(jsii.String("AWS::IAM::Role"), jsii.Number(2))
	buildRole := d.LogicalID(resourceid.New(resourceid.KindRole, "BuildRole"))
	assert.True(t, strings.HasPrefix(buildRole, "BuildRole"), buildRole)
	assert.NotEmpty(t, d.LogicalID(resourceid.New(resourceid.KindRole, "ReleaseRole")))

	template.HasOutput(jsii.String("BuildRoleArn"), map[string]interface{}{
		"Value": map[string]interface{}{"Fn::GetAtt": []interface{}{buildRole, "Arn"}},
	})

	template.HasResourceProperties(jsii.String("AWS::CodeBuild::Project"), map[string]interface{}{
		"Source": assertions.Match_ObjectLike(&map[string]interface{}{
			"BuildSpec": assertions.Match_StringLikeRegexp(jsii.String("make")),
		}),
		"Environment": assertions.Match_ObjectLike(&map[string]interface{}{
			"EnvironmentVariables": []interface{}{
				map[string]interface{}{"Name": "STAGE", "Type": "PLAINTEXT", "Value": "test"},
			},
		}),
	})

	template.HasResourceProperties(jsii.String("AWS::CodePipeline::Pipeline"), map[string]interface{}{
		"Stages": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"Name": "Source",
				"Actions": []interface{}{
					assertions.Match_ObjectLike(&map[string]interface{}{
						"Configuration": assertions.Match_ObjectLike(&map[string]interface{}{"PollForSourceChanges": true}),
					}),
				},
			}),
			assertions.Match_ObjectLike(&map[string]interface{}{
				"Name": "Deploy",
				"Actions": []interface{}{
					assertions.Match_ObjectLike(&map[string]interface{}{
						"Name":         "Approve",
						"ActionTypeId": assertions.Match_ObjectLike(&map[string]interface{}{"Category": "Approval"}),
						"RunOrder":     1,
					}),
					assertions.Match_ObjectLike(&map[string]interface{}{
						"Name":         "Upload",
						"ActionTypeId": assertions.Match_ObjectLike(&map[string]interface{}{"Category": "Deploy", "Provider": "S3"}),
						"RunOrder":     2,
					}),
				},
			}),
		}),
	})
}

func TestDefine_MissingArchive(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	model, err := hcl_adapter.NewLoader().Load(ctx, testutil.WriteReferenceStack(t))
	require.NoError(t, err)
	st, _, err := builder.Build(ctx, model)
	require.NoError(t, err)

	_, err = Define(ctx, st, nil, t.TempDir())
	assert.ErrorContains(t, err, `asset "JavaProjectZip" has not been packaged`)
}

func TestBuildSpec(t *testing.T) {
	spec, err := buildSpec("ci/buildspec.yml")
	require.NoError(t, err)
	assert.False(t, *spec.IsImmediate(), "a file name is read from the source at build time")

	spec, err = buildSpec("version: 0.2\nphases:\n  build:\n    commands: [make]\n")
	require.NoError(t, err)
	assert.True(t, *spec.IsImmediate())

	_, err = buildSpec("version: 0.2\n  - : [\n")
	assert.ErrorContains(t, err, "invalid inline buildspec")
}

func TestSynth(t *testing.T) {
	ctx, logs := testutil.NewContext(t)
	d, _, archives, outDir := define(t, testutil.WriteReferenceStack(t))

	asm, err := d.Synth(ctx, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, outDir, asm.Dir)
	assert.Equal(t, "FinalStack.template.json", asm.TemplateFile)
	assert.Equal(t, "FinalStack.template.yaml", asm.YAMLTemplateFile)
	assert.Equal(t, "FinalStack.assets.json", asm.AssetsFile)
	assert.FileExists(t, filepath.Join(outDir, ManifestFile))
	assert.Greater(t, asm.Resources, 6)

	archive := archives["JavaProjectZip"]
	require.Len(t, asm.AssetFiles, 1)
	assert.Contains(t, asm.AssetFiles[0], archive.Hash)
	staged, err := os.ReadFile(filepath.Join(outDir, asm.AssetFiles[0]))
	require.NoError(t, err)
	assert.Equal(t, archive.Data, staged)

	data, err := os.ReadFile(filepath.Join(outDir, asm.YAMLTemplateFile))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "Automated software delivery pipeline", doc["Description"])
	assert.Contains(t, doc["Resources"], "ArtifactBucket7410C9EF")

	assert.Contains(t, logs.String(), "Cloud assembly written.")
}

func TestReadAssetManifests(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	d, _, archives, outDir := define(t, testutil.WriteReferenceStack(t))
	asm, err := d.Synth(ctx, FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, asm.YAMLTemplateFile)

	manifests, err := ReadAssetManifests(outDir)
	require.NoError(t, err)
	require.Contains(t, manifests, "FinalStack.assets")
	m := manifests["FinalStack.assets"]
	assert.Equal(t, "FinalStack.assets.json", m.File)
	require.Len(t, m.Files, 2, "the code asset and the template")

	archive := archives["JavaProjectZip"]
	code, ok := m.Files[archive.Hash]
	require.True(t, ok)
	assert.Equal(t, FileSource{Path: asm.AssetFiles[0], Packaging: "file"}, code.Source)
	require.Len(t, code.Destinations, 1)
	for _, dest := range code.Destinations {
		if diff := cmp.Diff(archive.Hash+".zip", dest.ObjectKey); diff != "" {
			t.Errorf("object key mismatch (-want +got):\n%s", diff)
		}
		assert.Contains(t, dest.BucketName, "hnb659fds")
	}

	t.Run("not an assembly", func(t *testing.T) {
		_, err := ReadAssetManifests(t.TempDir())
		assert.ErrorContains(t, err, "no cloud assembly")
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" YAML ")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("toml")
	assert.ErrorContains(t, err, `unknown template format "toml"; use json or yaml`)

	assert.Equal(t, "Site.template.json", TemplateFileName("Site", FormatJSON))
}

func TestConvertToYAML(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.json")
	dst := filepath.Join(dir, "out.yaml")
	require.NoError(t, os.WriteFile(src, []byte(`{"Zeta":{"Enabled":"true","Count":2},"Alpha":["a","b"]}`), 0o644))

	require.NoError(t, convertToYAML(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)

	want := "Zeta:\n  Enabled: \"true\"\n  Count: 2\nAlpha:\n  - a\n  - b\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("yaml mismatch (-want +got):\n%s", diff)
	}
}

func TestRecoverJSII(t *testing.T) {
	run := func() (err error) {
		defer recoverJSII(&err, "failed to define stack %s", "Broken")
		panic("construct id already used")
	}
	assert.EqualError(t, run(), "failed to define stack Broken: construct id already used")
}
