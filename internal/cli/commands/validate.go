package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/project"
	"github.com/leapstack-labs/inspector/pkg/core"
)

// Finding severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding is one problem validate reports.
type Finding struct {
	Severity string `json:"severity"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// ValidateOutput is the JSON result of the validate command.
type ValidateOutput struct {
	Project  string    `json:"project"`
	Findings []Finding `json:"findings"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the entity model and its pipelines",
		Long: `Validate the entity model file and everything generated from it.

Errors are problems that stop generation: unknown entities, types or
templates, broken foreign keys, malformed source mappings and pipelines
that cannot be planned. Warnings are problems generation works around,
such as an entity whose transform SQL cannot be built.

The command fails when any error is found.`,
		Example: `  inspector validate
  inspector validate -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd)
		},
	}
	return cmd
}

func runValidate(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	p, err := project.Load(cmdCtx.Cfg.Project)
	if err != nil {
		return err
	}

	out := ValidateOutput{Project: p.Path, Findings: []Finding{}}
	add := func(sev, subject, msg string) {
		out.Findings = append(out.Findings, Finding{Severity: sev, Subject: subject, Message: msg})
		if sev == SeverityError {
			out.Errors++
		} else {
			out.Warnings++
		}
	}

	if err := p.Validate(); err != nil {
		var verr *project.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for _, problem := range verr.Problems {
			add(SeverityError, "model", problem)
		}
	}

	// Deeper checks need a structurally valid model.
	if out.Errors == 0 {
		sqlGen := cmdCtx.SQLGenerator(p)
		for _, e := range p.Entities {
			if e.Type == core.EntityInterim || !hasSources(e) {
				continue
			}
			for _, reason := range sqlGen.Validate(e, e.Fields) {
				add(SeverityWarning, e.Name, "transform SQL: "+reason)
			}
		}

		gen := cmdCtx.Generator()
		for _, pl := range p.Pipelines {
			subject := "pipeline " + pl.Entity
			req, err := p.Request(pl)
			if err != nil {
				add(SeverityError, subject, err.Error())
				continue
			}
			plan, err := gen.Plan(req)
			if err != nil {
				add(SeverityError, subject, err.Error())
				continue
			}
			for _, w := range plan.Warnings {
				add(SeverityWarning, subject, w)
			}
		}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
	} else {
		renderValidate(r, out)
	}
	if out.Errors > 0 {
		return fmt.Errorf("%s: %d errors", p.Path, out.Errors)
	}
	return nil
}

func hasSources(e core.Entity) bool {
	for _, f := range e.Fields {
		if f.Metadata.Source != "" {
			return true
		}
	}
	return false
}

func renderValidate(r *output.Renderer, out ValidateOutput) {
	r.Header(1, "Validation")
	if len(out.Findings) == 0 {
		r.Println("No problems found.")
		return
	}
	rows := make([][]any, 0, len(out.Findings))
	for _, f := range out.Findings {
		rows = append(rows, []any{f.Severity, f.Subject, f.Message})
	}
	r.Table([]string{"Severity", "Subject", "Message"}, rows)
	r.Muted(fmt.Sprintf("%d errors, %d warnings", out.Errors, out.Warnings))
}
