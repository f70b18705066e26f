package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/sqlgen"
)

// NewSQLCommand creates the sql command.
func NewSQLCommand() *cobra.Command {
	var selectOnly bool

	cmd := &cobra.Command{
		Use:   "sql <entity>",
		Short: "Show the transform SQL of an entity",
		Long: `Generate the SQL that builds an entity from its staging data.

Field source mappings ("<entity>.<field>") decide the base table and the
joins; foreign keys are resolved through the natural key of the referenced
entity. Entities whose mappings cannot be resolved are reported with every
reason instead of SQL.`,
		Example: `  # INSERT ... SELECT for the sales fact
  inspector sql fact_sales

  # Only the SELECT, for staging
  inspector sql fact_sales --select-only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(cmd, args[0], selectOnly)
		},
	}

	cmd.Flags().BoolVar(&selectOnly, "select-only", false, "Print only the SELECT statement")
	return cmd
}

func runSQL(cmd *cobra.Command, entity string, selectOnly bool) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	p, err := cmdCtx.Project()
	if err != nil {
		return err
	}
	e, err := p.Entity(entity)
	if err != nil {
		return err
	}

	stmt, err := cmdCtx.SQLGenerator(p).Generate(e, e.Fields)
	if err != nil {
		var verr *sqlgen.ValidationError
		if errors.As(err, &verr) && r.EffectiveMode() != output.ModeJSON {
			r.Header(1, "Cannot generate SQL for "+e.Name)
			for _, reason := range verr.Reasons {
				r.Println("- " + reason)
			}
		}
		return err
	}

	query := stmt.SQL
	if selectOnly {
		query = stmt.SelectOnly
	}
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(stmt)
	case output.ModeMarkdown:
		r.Header(1, "Transform SQL: "+e.Name)
		r.Println(output.FormatKeyValue("Target", stmt.Table))
		r.Println(output.FormatKeyValue("Base table", stmt.BaseTable))
		r.Println("")
		r.CodeBlock("sql", query)
	default:
		r.CodeBlock("sql", query)
	}
	return nil
}
