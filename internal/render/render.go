// Package render turns a template plus variables into the subject and body of a message.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/aliskhannn/notify-engine/internal/model"
)

var (
	ErrMissingVariable = errors.New("missing template variable")
	ErrInvalidTemplate = errors.New("invalid template")
)

type compiled struct {
	tpl     model.Template
	subject *template.Template
	body    *template.Template
}

// Renderer holds parsed templates keyed by id. It is safe for concurrent use.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]compiled
}

// NewRenderer parses every template up front so that syntax errors surface at startup.
func NewRenderer(templates []model.Template) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]compiled, len(templates))}

	for _, t := range templates {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds or replaces a template.
func (r *Renderer) Register(t model.Template) error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTemplate)
	}
	if !t.Channel.IsValid() {
		return fmt.Errorf("%w: template %s has unknown channel %q", ErrInvalidTemplate, t.ID, t.Channel)
	}

	c := compiled{tpl: t}

	var err error
	if t.SubjectTemplate != "" {
		c.subject, err = parse(t.ID+".subject", t.SubjectTemplate)
		if err != nil {
			return err
		}
	}

	c.body, err = parse(t.ID+".body", t.BodyTemplate)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates[t.ID] = c
	r.mu.Unlock()

	return nil
}

// Template returns the template definition by id.
func (r *Renderer) Template(id string) (model.Template, error) {
	r.mu.RLock()
	c, ok := r.templates[id]
	r.mu.RUnlock()

	if !ok {
		return model.Template{}, fmt.Errorf("%w: %s", model.ErrTemplateNotFound, id)
	}

	return c.tpl, nil
}

// Render executes the template. It fails closed: every required variable must
// be present, and any variable the template references must be supplied.
func (r *Renderer) Render(id string, vars map[string]string) (subject, body string, err error) {
	r.mu.RLock()
	c, ok := r.templates[id]
	r.mu.RUnlock()

	if !ok {
		return "", "", fmt.Errorf("%w: %s", model.ErrTemplateNotFound, id)
	}

	if err := CheckRequired(c.tpl, vars); err != nil {
		return "", "", err
	}

	if c.subject != nil {
		subject, err = execute(c.subject, vars)
		if err != nil {
			return "", "", err
		}
	}

	body, err = execute(c.body, vars)
	if err != nil {
		return "", "", err
	}

	return subject, body, nil
}

// CheckRequired verifies that vars carries every variable t requires.
func CheckRequired(t model.Template, vars map[string]string) error {
	var missing []string
	for _, name := range t.RequiredVariables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}

	return nil
}

func parse(name, src string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	return t, nil
}

func execute(t *template.Template, vars map[string]string) (string, error) {
	if vars == nil {
		vars = map[string]string{}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		// missingkey=error reports an absent map key as an exec error
		if strings.Contains(err.Error(), "map has no entry for key") {
			return "", fmt.Errorf("%w: %v", ErrMissingVariable, err)
		}
		return "", fmt.Errorf("execute template %s: %w", t.Name(), err)
	}

	return buf.String(), nil
}
