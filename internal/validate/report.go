package validate

import (
	"fmt"
	"strings"
)

// Report is the outcome of a validation run.
type Report struct {
	Findings []Finding `json:"findings" yaml:"findings"`
}

// Errors returns the findings of error severity.
func (r *Report) Errors() []Finding { return r.filter(SeverityError) }

// Warnings returns the findings of warning severity.
func (r *Report) Warnings() []Finding { return r.filter(SeverityWarning) }

// HasErrors reports whether any finding is an error.
func (r *Report) HasErrors() bool { return len(r.Errors()) > 0 }

// Err summarises the error findings. It returns nil when there are none.
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, 0, len(errs))
	for _, f := range errs {
		lines = append(lines, "  "+f.String())
	}
	return fmt.Errorf("validation failed with %d error(s):\n%s", len(errs), strings.Join(lines, "\n"))
}

func (r *Report) filter(sev Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}
