package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/inspector/internal/cascade"
	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/document"
	"github.com/leapstack-labs/inspector/internal/project"
	"github.com/leapstack-labs/inspector/internal/state"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/pipeline"
)

// ExtractOutput is the JSON result of the extract command.
type ExtractOutput struct {
	Template  string           `json:"template"`
	Documents []DocumentResult `json:"documents"`
	Summary   pipeline.Summary `json:"summary"`
}

// DocumentResult is the outcome of one document.
type DocumentResult struct {
	File    string                 `json:"file"`
	Result  *core.ExtractionResult `json:"result,omitempty"`
	Records []core.Record          `json:"records,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// NewExtractCommand creates the extract command.
func NewExtractCommand() *cobra.Command {
	var records bool

	cmd := &cobra.Command{
		Use:   "extract <template> <file>...",
		Short: "Extract fields from local documents with a template",
		Long: `Run the extraction cascade over local documents.

Each field is resolved by the cheapest layer that finds it: XPath, then CSS,
then text patterns. HTML, email (.eml), CSV, JSON, plain text and saved OCR
analyses (*.blocks.json) are supported. PDFs must be analyzed first.

The template is a name declared in the entity model or a path to a .json
file. Documents are processed concurrently (see --concurrency); a document
that fails does not stop the others.`,
		Example: `  # Extract one invoice
  inspector extract invoice testdata/invoice.html

  # Extract a directory of emails as JSON
  inspector extract templates/order.json mail/*.eml -o json

  # Produce one record per CSV row or JSON item
  inspector extract sales exports/sales.csv --records`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0], args[1:], records)
		},
	}

	cmd.Flags().BoolVar(&records, "records", false, "Emit records (one per row or item) instead of field results")
	return cmd
}

func runExtract(cmd *cobra.Command, templateRef string, files []string, records bool) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tmpl, err := resolveTemplate(cmdCtx, templateRef)
	if err != nil {
		return err
	}

	st, err := cmdCtx.OpenState(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	run, err := st.StartRun(ctx, state.RunStart{Template: tmpl.Name, Command: "extract"})
	if err != nil {
		return err
	}

	results, extractErr := extractDocuments(ctx, cmdCtx, tmpl, files, records)

	out := ExtractOutput{
		Template:  tmpl.Name,
		Documents: results,
		Summary:   pipeline.Summary{Template: tmpl.Name},
	}
	var failed int
	for _, r := range results {
		out.Summary.ArtifactsProcessed++
		switch {
		case r.Error != "":
			failed++
			out.Summary.ArtifactsFailed++
		case r.Records != nil:
			out.Summary.RecordsExtracted += len(r.Records)
		case r.Result != nil && r.Result.Success:
			out.Summary.RecordsExtracted++
		}
	}

	runErr := extractErr
	if runErr == nil && failed > 0 {
		runErr = fmt.Errorf("%d of %d documents failed", failed, len(files))
	}
	if err := st.FinishRun(ctx, run.ID, out.Summary, runErr); err != nil {
		cmdCtx.Logger.Warn("failed to record run", "run", run.ID, "error", err)
	}
	if extractErr != nil {
		return extractErr
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(out); err != nil {
			return err
		}
	default:
		renderExtract(r, tmpl, out)
	}
	return runErr
}

// resolveTemplate loads a template by path, or by name from the entity model.
func resolveTemplate(c *CommandContext, ref string) (*core.Template, error) {
	if strings.HasSuffix(ref, ".json") {
		if _, err := os.Stat(ref); err == nil {
			return project.LoadTemplate(ref)
		}
	}
	p, err := project.Load(c.Cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", ref, err)
	}
	return p.Template(ref)
}

// extractDocuments runs the cascade over files with bounded concurrency.
// Only template defects abort the batch.
func extractDocuments(ctx context.Context, c *CommandContext, tmpl *core.Template, files []string, records bool) ([]DocumentResult, error) {
	engine := cascade.New(cascade.Config{Logger: c.Logger})
	results := make([]DocumentResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	if n := c.Cfg.Pipeline.Concurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, file := range files {
		g.Go(func() error {
			res := DocumentResult{File: file}
			err := extractOne(ctx, engine, tmpl, file, records, &res)
			var tmplErr *cascade.TemplateError
			if errors.As(err, &tmplErr) {
				return fmt.Errorf("%s: %w", file, err)
			}
			if err != nil {
				c.Logger.Warn("document failed", "file", file, "error", err)
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func extractOne(ctx context.Context, engine *cascade.Engine, tmpl *core.Template, file string, records bool, res *DocumentResult) error {
	data, err := os.ReadFile(file) //nolint:gosec // user-supplied document path
	if err != nil {
		return err
	}
	doc, err := document.Load(data, filepath.Base(file), "")
	if err != nil {
		return err
	}
	if records {
		recs, err := engine.ExtractRecords(ctx, tmpl, doc)
		if err != nil {
			return err
		}
		if recs == nil {
			recs = []core.Record{}
		}
		res.Records = recs
		return nil
	}
	result, err := engine.Extract(ctx, tmpl, doc)
	if err != nil {
		return err
	}
	res.Result = result
	return nil
}

func renderExtract(r *output.Renderer, tmpl *core.Template, out ExtractOutput) {
	r.Header(1, "Extraction: "+tmpl.Name)
	fields := tmpl.FieldNames()
	for _, doc := range out.Documents {
		r.Header(2, doc.File)
		switch {
		case doc.Error != "":
			r.Warnf("%s: %s", doc.File, doc.Error)
			r.KeyValue("error", doc.Error)
		case doc.Records != nil:
			rows := make([][]any, 0, len(doc.Records))
			for _, rec := range doc.Records {
				row := make([]any, len(fields))
				for i, f := range fields {
					row[i] = display(rec[f])
				}
				rows = append(rows, row)
			}
			r.Table(fields, rows)
		default:
			res := doc.Result
			rows := make([][]any, 0, len(fields))
			for _, f := range fields {
				rows = append(rows, []any{f, display(res.Data[f]), res.Methods[f]})
			}
			r.Table([]string{"Field", "Value", "Method"}, rows)
			r.KeyValue("method", res.Method)
			r.KeyValue("success", res.Success)
			if len(res.FailedFields) > 0 {
				r.KeyValue("failed", strings.Join(res.FailedFields, ", "))
			}
			for _, w := range res.Warnings {
				r.Muted("warning: " + w)
			}
		}
		r.Println("")
	}
	s := out.Summary
	r.Muted(fmt.Sprintf("%d documents, %d failed, %d records", s.ArtifactsProcessed, s.ArtifactsFailed, s.RecordsExtracted))
}

// display renders a possibly-null value.
func display(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case *string:
		if x == nil {
			return "-"
		}
		return *x
	default:
		return fmt.Sprint(x)
	}
}
