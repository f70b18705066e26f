package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/codegen"
	"github.com/leapstack-labs/inspector/pkg/core"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	Parents(string) []string
	Children(string) []string
	Len() int
	EdgeCount() int
}

// DAGOutput is the JSON form of the entity graph.
type DAGOutput struct {
	Levels        []DAGLevel `json:"levels"`
	TotalEntities int        `json:"total_entities"`
	TotalEdges    int        `json:"total_edges"`
}

// DAGLevel is one execution level.
type DAGLevel struct {
	Level    int       `json:"level"`
	Entities []DAGNode `json:"entities"`
}

// DAGNode is one entity and its neighbours.
type DAGNode struct {
	Name      string          `json:"name"`
	Type      core.EntityType `json:"type"`
	DependsOn []string        `json:"depends_on"`
	UsedBy    []string        `json:"used_by"`
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the entity dependency graph",
		Long: `Display the dependency graph of the entity model.

An entity depends on the source of every relationship targeting it and on
every entity its fields' source mappings name. Entities are grouped by
level: each level only needs entities of earlier levels, which is the order
their pipelines must load in.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the DAG
  inspector dag

  # Output as JSON
  inspector dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	p, err := cmdCtx.Project()
	if err != nil {
		return err
	}
	graph := codegen.EntityGraph(p.Entities, p.Relationships, cmdCtx.Logger)
	levels, err := graph.Levels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}
	typeOf := func(name string) core.EntityType {
		if n, ok := graph.Node(name); ok {
			return n.Data.Type
		}
		return ""
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return dagJSON(r, graph, levels, typeOf)
	case output.ModeMarkdown:
		dagMarkdown(r, graph, levels, typeOf)
	default:
		dagText(r, graph, levels, typeOf)
	}
	return nil
}

// dagText outputs DAG in styled text format.
func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string, typeOf func(string) core.EntityType) {
	r.Header(1, "Entity Graph")

	for i, level := range levels {
		r.Header(2, fmt.Sprintf("Level %d:", i))
		for _, name := range level {
			r.Printf("  %s (%s)\n", name, typeOf(name))
			if deps := graph.Parents(name); len(deps) > 0 {
				r.Printf("    depends on: %s\n", strings.Join(deps, ", "))
			}
			if children := graph.Children(name); len(children) > 0 {
				r.Printf("    used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Muted(fmt.Sprintf("Total: %d entities, %d dependencies", graph.Len(), graph.EdgeCount()))
}

// dagMarkdown outputs DAG in markdown format.
func dagMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string, typeOf func(string) core.EntityType) {
	r.Println(output.FormatHeader(1, "Entity Graph"))
	r.Println("")

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Sources)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, name := range level {
			r.Printf("- %s (%s)\n", name, typeOf(name))
			if deps := graph.Parents(name); len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if children := graph.Children(name); len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Entities", fmt.Sprintf("%d", graph.Len())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", graph.EdgeCount())))
}

// dagJSON outputs DAG in JSON format.
func dagJSON(r *output.Renderer, graph GraphQuerier, levels [][]string, typeOf func(string) core.EntityType) error {
	out := DAGOutput{
		Levels:        make([]DAGLevel, 0, len(levels)),
		TotalEntities: graph.Len(),
		TotalEdges:    graph.EdgeCount(),
	}

	for i, level := range levels {
		dl := DAGLevel{Level: i, Entities: make([]DAGNode, 0, len(level))}
		for _, name := range level {
			dl.Entities = append(dl.Entities, DAGNode{
				Name:      name,
				Type:      typeOf(name),
				DependsOn: nonNil(graph.Parents(name)),
				UsedBy:    nonNil(graph.Children(name)),
			})
		}
		out.Levels = append(out.Levels, dl)
	}

	return r.JSON(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
