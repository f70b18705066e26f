// Package project loads the entity model file: entities, relationships,
// named templates and the pipelines to generate from them.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/inspector/internal/codegen"
	"github.com/leapstack-labs/inspector/internal/mapping"
	"github.com/leapstack-labs/inspector/pkg/core"
)

// Project is a loaded entity model file.
type Project struct {
	// Path is the file the project was loaded from; Dir is its directory.
	Path string `yaml:"-"`
	Dir  string `yaml:"-"`

	Entities      []core.Entity       `yaml:"entities"`
	Relationships []core.Relationship `yaml:"relationships"`
	// Templates maps a template name to a JSON file relative to Dir.
	Templates map[string]string `yaml:"templates"`
	Pipelines []Pipeline        `yaml:"pipelines"`
}

// Pipeline declares a pipeline to generate for one entity.
type Pipeline struct {
	Entity   string   `yaml:"entity"`
	Template string   `yaml:"template"`
	Sources  []string `yaml:"sources"`
	Strategy string   `yaml:"strategy"`
}

// ParseError is a malformed project file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError lists every problem found in a project.
type ValidationError struct {
	Path     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is invalid: %s", e.Path, strings.Join(e.Problems, "; "))
}

// Load reads and decodes a project file. Unknown keys are rejected.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p.Path = abs
	p.Dir = filepath.Dir(abs)
	return p, nil
}

// Parse decodes a project from YAML.
func Parse(data []byte) (*Project, error) {
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &p, nil
}

// Validate checks the model. It returns a *ValidationError listing every
// problem, or nil.
func (p *Project) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	names := make(map[string]bool)
	for _, e := range p.Entities {
		if e.Name == "" {
			add("entity %q has no name", e.ID)
			continue
		}
		key := strings.ToLower(e.Name)
		if names[key] {
			add("duplicate entity %s", e.Name)
		}
		names[key] = true
		if !e.Type.Valid() {
			add("entity %s has unknown type %q", e.Name, e.Type)
		}
		for _, f := range e.Fields {
			if !f.DataType.Valid() {
				add("field %s.%s has unknown data type %q", e.Name, f.Name, f.DataType)
			}
			if f.IsFK() {
				if _, ok := mapping.Parse(f.Metadata.Source); !ok {
					add("foreign key %s.%s needs a source mapping of the form entity.field", e.Name, f.Name)
				}
			}
			if f.ForeignKey != nil {
				if _, ok := core.FindEntity(p.Entities, f.ForeignKey.Entity); !ok {
					add("foreign key %s.%s references unknown entity %s", e.Name, f.Name, f.ForeignKey.Entity)
				}
			}
		}
	}

	for _, r := range p.Relationships {
		for _, ref := range []string{r.SourceEntityID, r.TargetEntityID} {
			if _, ok := core.FindEntity(p.Entities, ref); !ok {
				add("relationship %s -> %s references unknown entity %s", r.SourceEntityID, r.TargetEntityID, ref)
			}
		}
		switch r.Cardinality {
		case "", core.OneToOne, core.OneToMany, core.ManyToMany:
		default:
			add("relationship %s -> %s has unknown cardinality %q", r.SourceEntityID, r.TargetEntityID, r.Cardinality)
		}
	}

	for _, pl := range p.Pipelines {
		if _, ok := core.FindEntity(p.Entities, pl.Entity); !ok {
			add("pipeline references unknown entity %s", pl.Entity)
		}
		if pl.Template != "" && !p.hasTemplate(pl.Template) {
			add("pipeline %s references unknown template %s", pl.Entity, pl.Template)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Path: p.Path, Problems: problems}
}

func (p *Project) hasTemplate(ref string) bool {
	_, ok := p.Templates[ref]
	return ok || strings.HasSuffix(ref, ".json")
}

// Entity looks up an entity by id, name or table name.
func (p *Project) Entity(ref string) (core.Entity, error) {
	e, ok := core.FindEntity(p.Entities, ref)
	if !ok {
		return core.Entity{}, fmt.Errorf("unknown entity %s", ref)
	}
	return *e, nil
}

// TemplateNames returns the declared template names, sorted.
func (p *Project) TemplateNames() []string {
	names := make([]string, 0, len(p.Templates))
	for name := range p.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TemplatePath resolves a template name, or a path to a .json file, against
// the project directory.
func (p *Project) TemplatePath(ref string) (string, error) {
	file, ok := p.Templates[ref]
	if !ok {
		if !strings.HasSuffix(ref, ".json") {
			return "", fmt.Errorf("unknown template %s", ref)
		}
		file = ref
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(p.Dir, file)
	}
	return file, nil
}

// Template loads a template by name or path.
func (p *Project) Template(ref string) (*core.Template, error) {
	path, err := p.TemplatePath(ref)
	if err != nil {
		return nil, err
	}
	return LoadTemplate(path)
}

// LoadTemplate reads a template JSON file.
func LoadTemplate(path string) (*core.Template, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the project file
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	t, err := core.ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// Pipeline returns the declared pipeline of an entity.
func (p *Project) Pipeline(entity string) (Pipeline, bool) {
	e, ok := core.FindEntity(p.Entities, entity)
	if !ok {
		return Pipeline{}, false
	}
	for _, pl := range p.Pipelines {
		if e.Matches(pl.Entity) {
			return pl, true
		}
	}
	return Pipeline{}, false
}

// Request builds the code generation request of a pipeline.
func (p *Project) Request(pl Pipeline) (codegen.Request, error) {
	e, err := p.Entity(pl.Entity)
	if err != nil {
		return codegen.Request{}, err
	}
	req := codegen.Request{
		Entity:        e,
		Relationships: p.Relationships,
		Entities:      p.Entities,
		SourceIDs:     pl.Sources,
		Strategy:      pl.Strategy,
	}
	if pl.Template != "" {
		if req.Template, err = p.Template(pl.Template); err != nil {
			return codegen.Request{}, err
		}
	}
	return req, nil
}

// Requests builds the request of every declared pipeline, in file order.
func (p *Project) Requests() ([]codegen.Request, error) {
	out := make([]codegen.Request, 0, len(p.Pipelines))
	for _, pl := range p.Pipelines {
		req, err := p.Request(pl)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", pl.Entity, err)
		}
		out = append(out, req)
	}
	return out, nil
}

// Files returns the project file and every template file it names, for
// watching.
func (p *Project) Files() []string {
	files := []string{p.Path}
	for _, name := range p.TemplateNames() {
		if path, err := p.TemplatePath(name); err == nil {
			files = append(files, path)
		}
	}
	return files
}
