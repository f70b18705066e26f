package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/pipeline"
)

// Import paths of the generated program.
const (
	pipelineImport = "github.com/leapstack-labs/inspector/pkg/pipeline"
	coreImport     = "github.com/leapstack-labs/inspector/pkg/core"
)

// Generate plans the request and renders it as a Go program.
func (g *Generator) Generate(req Request) (*core.GeneratedPipeline, error) {
	p, err := g.Plan(req)
	if err != nil {
		return nil, err
	}
	code, err := Render(p)
	if err != nil {
		return nil, err
	}
	return &core.GeneratedPipeline{Code: code, Config: p.Config}, nil
}

// source accumulates the generated file. Fragments register the imports and
// top-level declarations they need.
type source struct {
	body    bytes.Buffer
	decls   bytes.Buffer
	imports map[string]bool
}

func (s *source) use(path string) {
	s.imports[path] = true
}

// Render writes a plan as a gofmt-formatted main package.
func Render(p *Plan) (string, error) {
	s := &source{imports: map[string]bool{"os": true, pipelineImport: true}}

	funcs := make([]string, 0, len(p.Stages))
	for _, st := range p.Stages {
		fn := ident(string(st.Spec.Kind()), p.Entity.Name)
		if err := s.stage(fn, st); err != nil {
			return "", err
		}
		funcs = append(funcs, fn)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "// Code generated by inspector generate. DO NOT EDIT.\n")
	fmt.Fprintf(&out, "// Entity: %s (%s)\n", p.Entity.Name, p.Entity.Type)
	fmt.Fprintf(&out, "// Extraction: %s\n\n", p.Kind)
	out.WriteString("package main\n\n")
	s.writeImports(&out)

	out.WriteString("func main() {\n\tos.Exit(pipeline.Main(stages()))\n}\n\n")
	out.WriteString("func stages() []pipeline.Stage {\n\treturn []pipeline.Stage{\n")
	for _, fn := range funcs {
		fmt.Fprintf(&out, "\t\t%s(),\n", fn)
	}
	out.WriteString("\t}\n}\n\n")
	out.Write(s.decls.Bytes())
	out.Write(s.body.Bytes())

	formatted, err := format.Source(out.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to format generated code: %w", err)
	}
	return string(formatted), nil
}

func (s *source) writeImports(out *bytes.Buffer) {
	var std, mod []string
	for path := range s.imports {
		if strings.Contains(path, ".") {
			mod = append(mod, path)
		} else {
			std = append(std, path)
		}
	}
	sort.Strings(std)
	sort.Strings(mod)
	out.WriteString("import (\n")
	for _, path := range std {
		fmt.Fprintf(out, "\t%q\n", path)
	}
	if len(std) > 0 && len(mod) > 0 {
		out.WriteString("\n")
	}
	for _, path := range mod {
		fmt.Fprintf(out, "\t%q\n", path)
	}
	out.WriteString(")\n\n")
}

// stage writes one stage constructor.
func (s *source) stage(fn string, st pipeline.Stage) error {
	spec, err := s.spec(fn, st.Spec)
	if err != nil {
		return fmt.Errorf("stage %s: %w", st.Name, err)
	}
	b := &s.body
	fmt.Fprintf(b, "func %s() pipeline.Stage {\n", fn)
	b.WriteString("\treturn pipeline.Stage{\n")
	fmt.Fprintf(b, "\t\tName: %q,\n", st.Name)
	if len(st.Deps) > 0 {
		fmt.Fprintf(b, "\t\tDeps: %s,\n", stringSlice(st.Deps))
	}
	fmt.Fprintf(b, "\t\tSpec: %s,\n", spec)
	b.WriteString("\t}\n}\n\n")
	return nil
}

// spec renders a stage spec literal.
func (s *source) spec(fn string, spec pipeline.StageSpec) (string, error) {
	var b strings.Builder
	switch v := spec.(type) {
	case pipeline.GenericExtraction:
		b.WriteString("pipeline.GenericExtraction{\n")
		fmt.Fprintf(&b, "Entity: %q,\n", v.Entity)
		if v.Template != nil {
			name, err := s.template(fn, v.Template)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "Template: pipeline.MustTemplate(%s),\n", name)
		}
		writeSourceIDs(&b, v.SourceIDs)
		fmt.Fprintf(&b, "Strategy: %q,\n", v.Strategy)

	case pipeline.SectionExtraction:
		s.use(coreImport)
		b.WriteString("pipeline.SectionExtraction{\n")
		fmt.Fprintf(&b, "Entity: %q,\n", v.Entity)
		if v.Template != "" {
			fmt.Fprintf(&b, "Template: %q,\n", v.Template)
		}
		fmt.Fprintf(&b, "Section: core.Section{Name: %q, Title: %q, StartPage: %d, EndPage: %d},\n",
			v.Section.Name, v.Section.Title, v.Section.StartPage, v.Section.EndPage)
		b.WriteString("Fields: []core.PatternField{\n")
		for _, f := range v.Fields {
			fmt.Fprintf(&b, "{Name: %q, Type: %q},\n", f.Name, f.Type)
		}
		b.WriteString("},\n")
		writeSourceIDs(&b, v.SourceIDs)

	case pipeline.MultiEntityExtraction:
		name, err := s.template(fn, v.Template)
		if err != nil {
			return "", err
		}
		b.WriteString("pipeline.MultiEntityExtraction{\n")
		fmt.Fprintf(&b, "Template: pipeline.MustTemplate(%s),\n", name)
		writeSourceIDs(&b, v.SourceIDs)
		if len(v.Tables) > 0 {
			b.WriteString("Tables: map[string]string{\n")
			keys := make([]string, 0, len(v.Tables))
			for k := range v.Tables {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "%q: %q,\n", k, v.Tables[k])
			}
			b.WriteString("},\n")
		}

	case pipeline.StagingExtraction:
		b.WriteString("pipeline.StagingExtraction{\n")
		fmt.Fprintf(&b, "Entity: %q,\n", v.Entity)
		fmt.Fprintf(&b, "SQL: %q,\n", v.SQL)

	case pipeline.Transformation:
		s.use(coreImport)
		b.WriteString("pipeline.Transformation{\n")
		fmt.Fprintf(&b, "Entity: %q,\n", v.Entity)
		fmt.Fprintf(&b, "Type: core.EntityType(%q),\n", v.Type)
		if len(v.Fields) > 0 {
			b.WriteString("Fields: []core.EntityField{\n")
			for _, f := range v.Fields {
				fmt.Fprintf(&b, "{Name: %q, DataType: core.DataType(%q)", f.Name, f.DataType)
				if f.PrimaryKey {
					b.WriteString(", PrimaryKey: true")
				}
				b.WriteString("},\n")
			}
			b.WriteString("},\n")
		}
		if len(v.Sources) > 0 {
			b.WriteString("Sources: map[string]string{\n")
			keys := make([]string, 0, len(v.Sources))
			for k := range v.Sources {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "%q: %q,\n", k, v.Sources[k])
			}
			b.WriteString("},\n")
		}

	case pipeline.Load:
		b.WriteString("pipeline.Load{\n")
		fmt.Fprintf(&b, "Entity: %q,\n", v.Entity)
		fmt.Fprintf(&b, "Table: %q,\n", v.Table)
		if len(v.Fields) > 0 {
			fmt.Fprintf(&b, "Fields: %s,\n", stringSlice(v.Fields))
		}
		if v.BatchSize > 0 {
			fmt.Fprintf(&b, "BatchSize: %d,\n", v.BatchSize)
		}
		if v.QualityThreshold > 0 {
			fmt.Fprintf(&b, "QualityThreshold: %g,\n", v.QualityThreshold)
		}

	default:
		return "", fmt.Errorf("no code fragment for stage spec %T", spec)
	}
	b.WriteString("}")
	return b.String(), nil
}

// template declares the template JSON as a constant and returns its name.
func (s *source) template(fn string, t *core.Template) (string, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode template: %w", err)
	}
	name := fn + "Template"
	fmt.Fprintf(&s.decls, "const %s = %s\n\n", name, goString(string(data)))
	return name, nil
}

// goString quotes s, as a raw literal when it can be one.
func goString(s string) string {
	if !strings.Contains(s, "`") && !strings.Contains(s, "\r") {
		return "`" + s + "`"
	}
	return fmt.Sprintf("%q", s)
}

func writeSourceIDs(b *strings.Builder, ids []string) {
	if len(ids) > 0 {
		fmt.Fprintf(b, "SourceIDs: %s,\n", stringSlice(ids))
	}
}

func stringSlice(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}

// ident joins words into a lowerCamel Go identifier, splitting on anything
// that is not a letter or digit.
func ident(parts ...string) string {
	var words []string
	for _, p := range parts {
		words = append(words, strings.FieldsFunc(p, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...)
	}
	lower := cases.Lower(language.Und)
	title := cases.Title(language.Und)
	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(lower.String(w))
			continue
		}
		b.WriteString(title.String(w))
	}
	id := b.String()
	if id == "" || !unicode.IsLetter([]rune(id)[0]) {
		id = "x" + id
	}
	return id
}
