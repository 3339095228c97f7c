package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/pipestack/internal/stack"
)

const (
	defaultStackName      = "PipelineStack"
	defaultBranch         = "main"
	defaultBuildImage     = "STANDARD_7_0"
	defaultComputeType    = "BUILD_GENERAL1_SMALL"
	defaultTimeoutMinutes = 60
	defaultRunOrder       = 1

	codeBuildPrincipal    = "codebuild.amazonaws.com"
	codePipelinePrincipal = "codepipeline.amazonaws.com"
)

// buildImages maps symbolic Linux build images to their identifiers.
var buildImages = map[string]string{
	"STANDARD_4_0":     "aws/codebuild/standard:4.0",
	"STANDARD_5_0":     "aws/codebuild/standard:5.0",
	"STANDARD_6_0":     "aws/codebuild/standard:6.0",
	"STANDARD_7_0":     "aws/codebuild/standard:7.0",
	"AMAZON_LINUX_2_4": "aws/codebuild/amazonlinux2-x86_64-standard:4.0",
	"AMAZON_LINUX_2_5": "aws/codebuild/amazonlinux2-x86_64-standard:5.0",
}

var computeTypes = map[string]string{
	"SMALL":   "BUILD_GENERAL1_SMALL",
	"MEDIUM":  "BUILD_GENERAL1_MEDIUM",
	"LARGE":   "BUILD_GENERAL1_LARGE",
	"2XLARGE": "BUILD_GENERAL1_2XLARGE",
}

// resolveBuildImage accepts a symbolic image name or a literal image
// identifier (anything containing '/' or ':').
func resolveBuildImage(raw string) (string, error) {
	if raw == "" {
		raw = defaultBuildImage
	}
	if strings.ContainsAny(raw, "/:") {
		return raw, nil
	}
	if image, ok := buildImages[raw]; ok {
		return image, nil
	}
	return "", fmt.Errorf("unknown build image %q; use one of %s or a literal image identifier", raw, strings.Join(sortedKeys(buildImages), ", "))
}

func resolveComputeType(raw string) (string, error) {
	if raw == "" {
		return defaultComputeType, nil
	}
	if ct, ok := computeTypes[strings.ToUpper(raw)]; ok {
		return ct, nil
	}
	for _, ct := range computeTypes {
		if ct == raw {
			return ct, nil
		}
	}
	return "", fmt.Errorf("unknown compute type %q; use one of %s", raw, strings.Join(sortedKeys(computeTypes), ", "))
}

func parseEncryption(raw string) (stack.Encryption, error) {
	switch e := stack.Encryption(strings.ToUpper(raw)); e {
	case "":
		return stack.EncryptionS3Managed, nil
	case stack.EncryptionS3Managed, stack.EncryptionKMSManaged, stack.EncryptionNone:
		return e, nil
	}
	return "", fmt.Errorf("unknown encryption %q; use S3_MANAGED, KMS_MANAGED or UNENCRYPTED", raw)
}

func parseRemovalPolicy(raw string) (stack.RemovalPolicy, error) {
	switch p := stack.RemovalPolicy(strings.ToLower(raw)); p {
	case "":
		return stack.RemovalRetain, nil
	case stack.RemovalRetain, stack.RemovalDestroy:
		return p, nil
	}
	return "", fmt.Errorf("unknown removal policy %q; use retain or destroy", raw)
}

func parseActionType(raw string) (stack.ActionType, error) {
	switch t := stack.ActionType(raw); t {
	case stack.ActionCodeCommitSource, stack.ActionCodeBuild, stack.ActionManualApproval, stack.ActionS3Deploy:
		return t, nil
	}
	return "", fmt.Errorf("unknown action type %q; use codecommit_source, codebuild, manual_approval or s3_deploy", raw)
}

func parseTrigger(raw string) (stack.Trigger, error) {
	switch t := stack.Trigger(strings.ToLower(raw)); t {
	case "":
		return stack.TriggerEvents, nil
	case stack.TriggerEvents, stack.TriggerPoll, stack.TriggerNone:
		return t, nil
	}
	return "", fmt.Errorf("unknown trigger %q; use events, poll or none", raw)
}

// producesImplicitOutput reports whether an action without declared outputs
// gets a generated artifact.
func producesImplicitOutput(t stack.ActionType) bool {
	return t == stack.ActionCodeCommitSource || t == stack.ActionCodeBuild
}

func implicitArtifactName(stageName, actionName string) string {
	return "Artifact_" + sanitizeArtifactName(stageName) + "_" + sanitizeArtifactName(actionName)
}

func sanitizeArtifactName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
