package validate

import (
	"regexp"
	"slices"
	"strings"

	"github.com/vk/pipestack/internal/stack"
)

const (
	codeBuildPrincipal    = "codebuild.amazonaws.com"
	codePipelinePrincipal = "codepipeline.amazonaws.com"
	adminPolicy           = "AdministratorAccess"

	minStages       = 2
	maxBuildOutputs = 5
	minRunOrder     = 1
	maxRunOrder     = 999
)

var (
	artifactNameRegex   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
	repositoryNameRegex = regexp.MustCompile(`^[\w.-]{1,100}$`)
)

// Rule is a named check over a whole stack.
type Rule struct {
	Name        string
	Description string
	Check       func(c *Context, st *stack.Stack)
}

// Rules is the rule set applied by Validate, in reporting order.
var Rules = []Rule{
	{Name: "artifact-encryption", Description: "artifact stores are encrypted at rest", Check: checkArtifactEncryption},
	{Name: "pipeline-structure", Description: "pipelines have at least two uniquely named, non-empty stages", Check: checkPipelineStructure},
	{Name: "source-stage", Description: "source actions are exactly the actions of the first stage", Check: checkSourceStage},
	{Name: "source-action", Description: "source actions reference a repository and produce one artifact", Check: checkSourceActions},
	{Name: "build-action", Description: "build, deploy and approval actions are fully configured", Check: checkActionConfig},
	{Name: "action-references", Description: "actions reference only what their type uses", Check: checkActionReferences},
	{Name: "run-order", Description: "run orders are between 1 and 999", Check: checkRunOrder},
	{Name: "artifact-flow", Description: "inputs are produced earlier and artifact names are unique and valid", Check: checkArtifactFlow},
	{Name: "project-artifacts", Description: "project artifacts are named", Check: checkProjectArtifacts},
	{Name: "role-trust", Description: "roles trust only the service that uses them", Check: checkRoleTrust},
	{Name: "admin-access", Description: "roles do not carry full administrative access", Check: checkAdminAccess},
	{Name: "repository-name", Description: "repository names are valid", Check: checkRepositoryNames},
}

func checkArtifactEncryption(c *Context, st *stack.Stack) {
	for _, p := range st.Pipelines {
		c.Enter("pipeline %q", p.Name)
		if b := p.ArtifactBucket; b != nil && !b.Encrypted() {
			c.Errorf("artifact bucket %q is not encrypted; set encryption to S3_MANAGED or KMS_MANAGED", b.Name)
		}
		c.Exit()
	}
	for _, p := range st.Projects {
		if p.Artifacts == nil || p.Artifacts.Bucket == nil {
			continue
		}
		c.Enter("project %q", p.Name)
		if b := p.Artifacts.Bucket; !b.Encrypted() {
			c.Errorf("artifact bucket %q is not encrypted; set encryption to S3_MANAGED or KMS_MANAGED", b.Name)
		}
		c.Exit()
	}
}

func checkPipelineStructure(c *Context, st *stack.Stack) {
	for _, p := range st.Pipelines {
		c.Enter("pipeline %q", p.Name)
		if len(p.Stages) < minStages {
			c.Errorf("has %d stage(s); a pipeline needs at least %d", len(p.Stages), minStages)
		}
		stageNames := make(map[string]bool)
		for _, s := range p.Stages {
			if stageNames[s.Name] {
				c.Errorf("stage name %q is used more than once", s.Name)
			}
			stageNames[s.Name] = true

			c.Enter("stage %q", s.Name)
			if len(s.Actions) == 0 {
				c.Errorf("has no actions")
			}
			actionNames := make(map[string]bool)
			for _, a := range s.Actions {
				if actionNames[a.Name] {
					c.Errorf("action name %q is used more than once", a.Name)
				}
				actionNames[a.Name] = true
			}
			c.Exit()
		}
		c.Exit()
	}
}

func checkSourceStage(c *Context, st *stack.Stack) {
	for _, p := range st.Pipelines {
		c.Enter("pipeline %q", p.Name)
		for i, s := range p.Stages {
			c.Enter("stage %q", s.Name)
			for _, a := range s.Actions {
				switch {
				case i == 0 && !a.Type.IsSource():
					c.Errorf("action %q of type %s is not allowed in the first stage, which may only contain source actions", a.Name, a.Type)
				case i > 0 && a.Type.IsSource():
					c.Errorf("source action %q must be in the first stage", a.Name)
				}
			}
			c.Exit()
		}
		c.Exit()
	}
}

func checkSourceActions(c *Context, st *stack.Stack) {
	eachAction(c, st, func(a *stack.Action) {
		if !a.Type.IsSource() {
			return
		}
		if a.Repository == nil {
			c.Errorf("must reference a repository")
		}
		if len(a.Inputs) > 0 {
			c.Errorf("source actions take no inputs, got %d", len(a.Inputs))
		}
		if len(a.Outputs) != 1 {
			c.Errorf("source actions produce exactly one output, got %d", len(a.Outputs))
		}
	})
}

func checkActionConfig(c *Context, st *stack.Stack) {
	eachAction(c, st, func(a *stack.Action) {
		switch a.Type {
		case stack.ActionCodeBuild:
			if a.Project == nil {
				c.Errorf("must reference a project")
			}
			if len(a.Inputs) == 0 {
				c.Errorf("build actions need at least one input")
			}
			if len(a.Outputs) > maxBuildOutputs {
				c.Errorf("build actions produce at most %d outputs, got %d", maxBuildOutputs, len(a.Outputs))
			}
		case stack.ActionS3Deploy:
			if a.Bucket == nil {
				c.Errorf("must reference a bucket")
			}
			if len(a.Inputs) != 1 {
				c.Errorf("deploy actions take exactly one input, got %d", len(a.Inputs))
			}
			if len(a.Outputs) > 0 {
				c.Errorf("deploy actions produce no outputs")
			}
			if !a.Extract && a.ObjectKey == "" {
				c.Errorf("object_key is required when extract is false")
			}
		case stack.ActionManualApproval:
			if len(a.Inputs) > 0 || len(a.Outputs) > 0 {
				c.Errorf("approval actions take no inputs and produce no outputs")
			}
		}
	})
}

// actionReferences lists the references each action type takes.
var actionReferences = map[stack.ActionType][]string{
	stack.ActionCodeCommitSource: {"repository"},
	stack.ActionCodeBuild:        {"project"},
	stack.ActionS3Deploy:         {"bucket"},
	stack.ActionManualApproval:   nil,
}

func checkActionReferences(c *Context, st *stack.Stack) {
	eachAction(c, st, func(a *stack.Action) {
		allowed, ok := actionReferences[a.Type]
		if !ok {
			return
		}
		set := map[string]bool{
			"repository": a.Repository != nil,
			"project":    a.Project != nil,
			"bucket":     a.Bucket != nil,
		}
		for _, ref := range []string{"repository", "project", "bucket"} {
			if set[ref] && !slices.Contains(allowed, ref) {
				c.Errorf("%s actions do not use %s; remove it", a.Type, ref)
			}
		}
	})
}

func checkRunOrder(c *Context, st *stack.Stack) {
	eachAction(c, st, func(a *stack.Action) {
		if a.RunOrder < minRunOrder || a.RunOrder > maxRunOrder {
			c.Errorf("run_order %d must be between %d and %d", a.RunOrder, minRunOrder, maxRunOrder)
		}
	})
}

func checkArtifactFlow(c *Context, st *stack.Stack) {
	for _, p := range st.Pipelines {
		c.Enter("pipeline %q", p.Name)

		producedBy := make(map[string]string)
		available := make(map[string]bool)
		for _, s := range p.Stages {
			c.Enter("stage %q", s.Name)
			// Within a stage an output is visible to actions with a higher run order.
			for _, a := range s.Actions {
				c.Enter("action %q", a.Name)
				for _, in := range a.Inputs {
					if available[in.Name] || producedEarlierInStage(s, a, in.Name) {
						continue
					}
					if producer, ok := producedBy[in.Name]; ok || producedAnywhere(p, in.Name) {
						if !ok {
							producer = "a later action"
						}
						c.Errorf("input %q is produced by %s, which does not run before this action", in.Name, producer)
						continue
					}
					c.Errorf("input %q is not produced by any action", in.Name)
				}
				for _, out := range a.Outputs {
					if !artifactNameRegex.MatchString(out.Name) {
						c.Errorf("artifact name %q must be 1-100 letters, digits, '_' or '-'", out.Name)
					}
					if prev, exists := producedBy[out.Name]; exists {
						c.Errorf("artifact %q is already produced by %s", out.Name, prev)
						continue
					}
					producedBy[out.Name] = "action " + quote(a.Name)
				}
				c.Exit()
			}
			for _, a := range s.Actions {
				for _, out := range a.Outputs {
					available[out.Name] = true
				}
			}
			c.Exit()
		}
		c.Exit()
	}
}

func producedEarlierInStage(s *stack.Stage, consumer *stack.Action, name string) bool {
	for _, a := range s.Actions {
		if a.RunOrder >= consumer.RunOrder {
			continue
		}
		for _, out := range a.Outputs {
			if out.Name == name {
				return true
			}
		}
	}
	return false
}

func producedAnywhere(p *stack.Pipeline, name string) bool {
	for _, a := range p.Actions() {
		for _, out := range a.Outputs {
			if out.Name == name {
				return true
			}
		}
	}
	return false
}

func checkProjectArtifacts(c *Context, st *stack.Stack) {
	for _, p := range st.Projects {
		if p.Artifacts == nil {
			continue
		}
		c.Enter("project %q", p.Name)
		if strings.TrimSpace(p.Artifacts.Name) == "" {
			c.Errorf("artifacts name must not be empty")
		}
		c.Exit()
	}
}

func checkRoleTrust(c *Context, st *stack.Stack) {
	for _, r := range st.Roles {
		c.Enter("role %q", r.Name)
		if len(r.AssumedBy) == 0 {
			c.Errorf("trusts no principal")
		}
		for _, p := range st.ProjectsUsingRole(r) {
			if !trustsOnly(r, codeBuildPrincipal) {
				c.Errorf("is used by project %q and must trust only %s, trusts %s", p.Name, codeBuildPrincipal, strings.Join(r.AssumedBy, ", "))
			}
		}
		for _, p := range st.PipelinesUsingRole(r) {
			if !trustsOnly(r, codePipelinePrincipal) {
				c.Errorf("is used by pipeline %q and must trust only %s, trusts %s", p.Name, codePipelinePrincipal, strings.Join(r.AssumedBy, ", "))
			}
		}
		c.Exit()
	}
}

func trustsOnly(r *stack.Role, principal string) bool {
	return len(r.AssumedBy) == 1 && r.AssumedBy[0] == principal
}

func checkAdminAccess(c *Context, st *stack.Stack) {
	for _, r := range st.Roles {
		if !r.HasManagedPolicy(adminPolicy) {
			continue
		}
		c.Enter("role %q", r.Name)
		c.Warningf("has %s attached; the generated default policy already grants what the pipeline needs", adminPolicy)
		c.Exit()
	}
}

func checkRepositoryNames(c *Context, st *stack.Stack) {
	for _, r := range st.Repositories {
		c.Enter("repository %q", r.Name)
		switch {
		case !repositoryNameRegex.MatchString(r.RepositoryName):
			c.Errorf("repository_name %q must be 1-100 letters, digits, '.', '_' or '-'", r.RepositoryName)
		case strings.HasSuffix(r.RepositoryName, ".git"):
			c.Errorf("repository_name %q must not end with .git", r.RepositoryName)
		}
		c.Exit()
	}
}

// eachAction calls fn for every action with the context entered on it.
func eachAction(c *Context, st *stack.Stack, fn func(a *stack.Action)) {
	for _, p := range st.Pipelines {
		c.Enter("pipeline %q", p.Name)
		for _, s := range p.Stages {
			c.Enter("stage %q", s.Name)
			for _, a := range s.Actions {
				c.Enter("action %q", a.Name)
				fn(a)
				c.Exit()
			}
			c.Exit()
		}
		c.Exit()
	}
}

func quote(s string) string {
	return `"` + s + `"`
}
