package prompt

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render fills {{name}} placeholders in one pass, so substituted values are
// never expanded again. Every placeholder must have a value.
func Render(tmpl string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[2 : len(m)-2]
		v, ok := vars[name]
		if !ok {
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Variables lists the placeholder names in tmpl in order of first use.
func Variables(tmpl string) []string {
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// supplied is what the callers pass to each template. An override that uses
// anything else would only fail at request time, so Load rejects it.
var supplied = map[string][]string{
	ScriptSystem:       nil,
	ScriptSingleSystem: nil,
	ScriptSlide:        {"slide_number", "notes", "text"},
	AskSystem:          nil,
	AskUser:            {"context", "question"},
}

func checkVariables(name, tmpl string) error {
	allowed, ok := supplied[name]
	if !ok {
		return fmt.Errorf("unknown prompt %q", name)
	}
	for _, v := range Variables(tmpl) {
		if !slices.Contains(allowed, v) {
			return fmt.Errorf("prompt %q uses unknown variable {{%s}}", name, v)
		}
	}
	return nil
}
