package validate

import (
	"context"

	"github.com/vk/pipestack/internal/ctxlog"
	"github.com/vk/pipestack/internal/stack"
)

// Validate applies every rule of Rules to the stack.
func Validate(ctx context.Context, st *stack.Stack) *Report {
	return ValidateWith(ctx, st, Rules)
}

// ValidateWith applies the given rules to the stack.
func ValidateWith(ctx context.Context, st *stack.Stack, rules []Rule) *Report {
	logger := ctxlog.FromContext(ctx)
	c := &Context{}

	for _, rule := range rules {
		c.rule = rule.Name
		before := len(c.findings)
		rule.Check(c, st)
		logger.Debug("Rule checked.", "rule", rule.Name, "findings", len(c.findings)-before)
	}

	report := &Report{Findings: c.findings}
	logger.Debug("Validation finished.",
		"errors", len(report.Errors()),
		"warnings", len(report.Warnings()),
	)
	return report
}
