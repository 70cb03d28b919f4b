package delivery

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tmpl := `<html><head><title>{{subject}}</title></head>
<body><span>{{preheader}}</span>{{body}}<a href="{{unsubscribe_url}}">Unsubscribe</a></body></html>`

	out := Render(tmpl, RenderVars{
		Body:           "<p>Hello</p>",
		Subject:        "Big News",
		Preheader:      "The short version",
		UnsubscribeURL: "https://example.com/unsubscribe?token=abc",
	})

	for _, want := range []string{
		"<title>Big News</title>",
		"<p>Hello</p>",
		"The short version",
		`href="https://example.com/unsubscribe?token=abc"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q", want)
		}
	}
	if strings.Contains(out, "{{") {
		t.Errorf("rendered output still contains placeholders: %s", out)
	}
}

func TestRenderMissingValuesAreEmpty(t *testing.T) {
	out := Render("a{{body}}b{{preheader}}c", RenderVars{})
	if out != "abc" {
		t.Errorf("got %q, want %q", out, "abc")
	}
}

func TestRenderRepeatedPlaceholders(t *testing.T) {
	out := Render("{{subject}} and {{subject}}", RenderVars{Subject: "X"})
	if out != "X and X" {
		t.Errorf("got %q", out)
	}
}

func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadTemplates(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"announcement.html": "<html>{{body}}</html>",
		"digest.html":       "<html>digest {{body}}</html>",
		"notes.txt":         "ignored",
	})

	ts, err := LoadTemplates(dir)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}

	if !ts.Has("digest") {
		t.Error("digest template should be loaded")
	}
	if ts.Has("notes") {
		t.Error("non-html file should not be loaded")
	}
	if got := ts.Get("digest"); !strings.Contains(got, "digest") {
		t.Errorf("Get(digest) = %q", got)
	}
	// Unknown and empty names fall back to the default shell.
	if got := ts.Get("nope"); got != "<html>{{body}}</html>" {
		t.Errorf("Get(nope) = %q, want default", got)
	}
	if got := ts.Get(""); got != "<html>{{body}}</html>" {
		t.Errorf("Get(\"\") = %q, want default", got)
	}
}

func TestLoadTemplatesRequiresDefault(t *testing.T) {
	dir := writeTemplates(t, map[string]string{"digest.html": "x"})
	if _, err := LoadTemplates(dir); err == nil {
		t.Error("expected error when announcement.html is missing")
	}
}
