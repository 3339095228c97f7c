package validate

import (
	"fmt"
	"strings"
)

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single rule violation.
type Finding struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Rule     string   `json:"rule" yaml:"rule"`
	Resource string   `json:"resource" yaml:"resource"`
	Message  string   `json:"message" yaml:"message"`
}

func (f Finding) String() string {
	if f.Resource == "" {
		return fmt.Sprintf("%s [%s] %s", f.Severity, f.Rule, f.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", f.Severity, f.Rule, f.Resource, f.Message)
}

// Context accumulates findings while rules walk the stack.
type Context struct {
	rule     string
	element  []string
	findings []Finding
}

// Enter descends into a sub-element, e.g. `stage "Build"`.
func (c *Context) Enter(format string, args ...any) {
	c.element = append(c.element, fmt.Sprintf(format, args...))
}

// Exit leaves the element entered last.
func (c *Context) Exit() {
	if len(c.element) > 0 {
		c.element = c.element[:len(c.element)-1]
	}
}

// Errorf records an error finding for the current element.
func (c *Context) Errorf(format string, args ...any) {
	c.record(SeverityError, fmt.Sprintf(format, args...))
}

// Warningf records a warning finding for the current element.
func (c *Context) Warningf(format string, args ...any) {
	c.record(SeverityWarning, fmt.Sprintf(format, args...))
}

func (c *Context) record(sev Severity, msg string) {
	c.findings = append(c.findings, Finding{
		Severity: sev,
		Rule:     c.rule,
		Resource: strings.Join(c.element, " "),
		Message:  msg,
	})
}
