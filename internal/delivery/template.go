package delivery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RenderVars are the substitution values available to email templates.
type RenderVars struct {
	Body           string
	Subject        string
	Preheader      string
	UnsubscribeURL string
}

// Render substitutes template placeholders with literal string
// replacement. Supported placeholders are {{body}}, {{subject}},
// {{preheader}} and {{unsubscribe_url}}; each occurrence is replaced,
// and placeholders with no value render as empty strings. Values are
// inserted verbatim, so template authors control escaping.
func Render(tmpl string, vars RenderVars) string {
	out := strings.ReplaceAll(tmpl, "{{body}}", vars.Body)
	out = strings.ReplaceAll(out, "{{subject}}", vars.Subject)
	out = strings.ReplaceAll(out, "{{preheader}}", vars.Preheader)
	out = strings.ReplaceAll(out, "{{unsubscribe_url}}", vars.UnsubscribeURL)
	return out
}

// DefaultTemplate is the name used when a campaign names no template or
// names one that does not exist on disk.
const DefaultTemplate = "announcement"

// TemplateStore loads HTML email shells from a directory. Templates are
// read once at startup; the store is read-only afterwards and safe for
// concurrent use.
type TemplateStore struct {
	templates map[string]string
}

// LoadTemplates reads every .html file in dir. The filename without
// extension is the template name.
func LoadTemplates(dir string) (*TemplateStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading template dir: %w", err)
	}

	ts := &TemplateStore{templates: make(map[string]string)}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".html")
		ts.templates[name] = string(data)
	}
	if _, ok := ts.templates[DefaultTemplate]; !ok {
		return nil, fmt.Errorf("template dir %s is missing %s.html", dir, DefaultTemplate)
	}
	return ts, nil
}

// Get returns the named template, falling back to the default when name
// is empty or unknown.
func (ts *TemplateStore) Get(name string) string {
	if t, ok := ts.templates[name]; ok {
		return t
	}
	return ts.templates[DefaultTemplate]
}

// Has reports whether a template with the given name exists.
func (ts *TemplateStore) Has(name string) bool {
	_, ok := ts.templates[name]
	return ok
}
