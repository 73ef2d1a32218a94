package notifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Rendered is channel-ready content produced from a template.
type Rendered struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// TemplateRenderer turns a template name and a data payload into deliverable
// content.
type TemplateRenderer interface {
	Render(ctx context.Context, name string, data map[string]any) (Rendered, error)
}

// MissingVariablesError reports template variables absent from the data
// payload.
type MissingVariablesError struct {
	Template  string
	Variables []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("notifier: template %q missing variables: %s", e.Template, strings.Join(e.Variables, ", "))
}

// ErrTemplateNotFound is returned for unregistered template names.
type ErrTemplateNotFound struct {
	Template string
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("notifier: template %q not found", e.Template)
}

type registeredTemplate struct {
	subject *template.Template
	body    *template.Template
	vars    []string
}

// StaticRenderer renders from an in-process template set. Templates use
// text/template syntax; variables referenced as {{.name}} must be present
// in the data payload or Render fails with MissingVariablesError.
type StaticRenderer struct {
	mu        sync.RWMutex
	templates map[string]registeredTemplate
}

// NewStaticRenderer creates an empty renderer.
func NewStaticRenderer() *StaticRenderer {
	return &StaticRenderer{templates: make(map[string]registeredTemplate)}
}

// RegisterTemplate parses and stores a template under the given name,
// replacing any previous registration.
func (r *StaticRenderer) RegisterTemplate(name, subject, body string) error {
	if name == "" {
		return fmt.Errorf("notifier: template name is required")
	}

	subjTmpl, err := template.New(name + ".subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return fmt.Errorf("notifier: parse subject template %q: %w", name, err)
	}
	bodyTmpl, err := template.New(name + ".body").Option("missingkey=error").Parse(body)
	if err != nil {
		return fmt.Errorf("notifier: parse body template %q: %w", name, err)
	}

	vars := collectVars(subject + body)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = registeredTemplate{subject: subjTmpl, body: bodyTmpl, vars: vars}

	return nil
}

// Render implements TemplateRenderer.
func (r *StaticRenderer) Render(ctx context.Context, name string, data map[string]any) (Rendered, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return Rendered{}, &ErrTemplateNotFound{Template: name}
	}

	if missing := missingVars(tmpl.vars, data); len(missing) > 0 {
		return Rendered{}, &MissingVariablesError{Template: name, Variables: missing}
	}

	var subject, body strings.Builder
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return Rendered{}, fmt.Errorf("notifier: render subject of %q: %w", name, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Rendered{}, fmt.Errorf("notifier: render body of %q: %w", name, err)
	}

	return Rendered{Subject: subject.String(), Content: body.String()}, nil
}

// collectVars extracts top-level {{.name}} references from template text.
func collectVars(text string) []string {
	seen := make(map[string]struct{})
	for i := 0; i+3 < len(text); i++ {
		if text[i] != '{' || text[i+1] != '{' {
			continue
		}
		j := i + 2
		for j < len(text) && (text[j] == ' ' || text[j] == '-') {
			j++
		}
		if j >= len(text) || text[j] != '.' {
			continue
		}
		j++
		start := j
		for j < len(text) && (isIdentChar(text[j]) || text[j] == '.') {
			j++
		}
		name := text[start:j]
		if idx := strings.IndexByte(name, '.'); idx >= 0 {
			name = name[:idx]
		}
		if name != "" {
			seen[name] = struct{}{}
		}
	}

	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func missingVars(vars []string, data map[string]any) []string {
	var missing []string
	for _, v := range vars {
		if _, ok := data[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
