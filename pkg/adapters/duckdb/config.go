package duckdb

import (
	"fmt"
	"sort"
	"strings"
)

// Params holds DuckDB-specific settings read from the adapter options.
//
//	extensions: comma-separated extensions to install and load
//	set.<name>: session setting, e.g. set.memory_limit=4GB
type Params struct {
	Extensions []string
	Settings   map[string]string
}

// ParseParams reads Params from adapter options.
func ParseParams(options map[string]string) Params {
	p := Params{Settings: map[string]string{}}
	for k, v := range options {
		switch {
		case k == "extensions":
			for _, ext := range strings.Split(v, ",") {
				if ext = strings.TrimSpace(ext); ext != "" {
					p.Extensions = append(p.Extensions, ext)
				}
			}
		case strings.HasPrefix(k, "set."):
			p.Settings[strings.TrimPrefix(k, "set.")] = v
		}
	}
	return p
}

// Statements returns the SQL that applies the params to a session.
func (p Params) Statements() []string {
	var stmts []string
	for _, ext := range p.Extensions {
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}
	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("SET %s = '%s'", k, strings.ReplaceAll(p.Settings[k], "'", "''")))
	}
	return stmts
}
