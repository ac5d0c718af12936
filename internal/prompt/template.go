// Package prompt builds the two prompts of a chat turn.
//
// Prompts are assembled from a Template whose fields are tagged trusted or
// untrusted. Untrusted values (the user's question, anything derived from
// warehouse contents) are interpolated verbatim; Untrusted lists them for
// callers that want to screen or fence them.
package prompt

import (
	"sort"
	"strings"
)

type Field struct {
	Name    string
	Trusted bool
}

type Template struct {
	Name   string
	Body   string
	Fields []Field
}

func placeholder(name string) string {
	return "{{" + name + "}}"
}

// Render substitutes every declared field in a single pass, so a value that
// itself contains a placeholder is never expanded. Missing values render
// empty.
func (t Template) Render(values map[string]string) string {
	pairs := make([]string, 0, len(t.Fields)*2)
	for _, field := range t.Fields {
		pairs = append(pairs, placeholder(field.Name), values[field.Name])
	}
	return strings.NewReplacer(pairs...).Replace(t.Body)
}

func (t Template) Untrusted() []string {
	names := make([]string, 0, len(t.Fields))
	for _, field := range t.Fields {
		if !field.Trusted {
			names = append(names, field.Name)
		}
	}
	sort.Strings(names)
	return names
}
