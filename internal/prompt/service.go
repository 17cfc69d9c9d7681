package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Template names.
const (
	ScriptSystem       = "script_system"
	ScriptSingleSystem = "script_single_system"
	ScriptSlide        = "script_slide"
	AskSystem          = "ask_system"
	AskUser            = "ask_user"
)

//go:embed prompts.yaml
var defaultTemplates []byte

// Library holds the named prompt templates used by the script generator and
// the ask endpoint.
type Library struct {
	templates map[string]string
}

// Default returns the built-in templates.
func Default() *Library {
	l, err := parse(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("built-in prompts: %v", err))
	}
	return l
}

// Load returns the built-in templates overlaid with those in path. An empty
// path yields the defaults.
func Load(path string) (*Library, error) {
	l := Default()
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	overrides, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	for name, tmpl := range overrides.templates {
		if err := checkVariables(name, tmpl); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		l.templates[name] = tmpl
	}
	return l, nil
}

func parse(data []byte) (*Library, error) {
	templates := make(map[string]string)
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, err
	}
	return &Library{templates: templates}, nil
}

// Get returns the raw template.
func (l *Library) Get(name string) (string, error) {
	tmpl, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	return tmpl, nil
}

// Render looks up name and fills in its variables.
func (l *Library) Render(name string, vars map[string]string) (string, error) {
	tmpl, err := l.Get(name)
	if err != nil {
		return "", err
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

func (l *Library) Names() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
