package infrastructure

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"resume-renderer/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `cv:
  name: Jane Doe
  label: Backend Engineer
  email: jane@example.com
  website: https://www.jane.dev/
  social_networks:
    - network: GitHub
      username: janedoe
  sections:
    summary:
      - Builds **reliable** systems.
    experience:
      - company: Acme
        position: Staff Engineer
        start_date: 2020-01
        end_date: 2024-06
        location: Remote
        url: https://blog.acme.co.uk/team
        highlights:
          - Cut p99 latency by *40%*
          - <script>alert(1)</script>Shipped billing
design:
  theme: classic
`

func TestBuildHTML(t *testing.T) {
	doc, err := model.Parse(sampleDoc)
	require.NoError(t, err)

	html, err := BuildHTML(doc)
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Jane Doe</h1>")
	assert.Contains(t, html, "Backend Engineer")
	assert.Contains(t, html, `href="mailto:jane@example.com"`)
	assert.Contains(t, html, `href="https://github.com/janedoe"`)
	assert.Contains(t, html, ">jane.dev<")
	assert.Contains(t, html, "<strong>reliable</strong>")
	assert.Contains(t, html, "<li>Cut p99 latency by <em>40%</em></li>")
	assert.Contains(t, html, "Staff Engineer")
	assert.Contains(t, html, "2020-01 – 2024-06")
	assert.Contains(t, html, ">acme.co.uk/team<")
	assert.Contains(t, html, themeAccents["classic"])
	assert.NotContains(t, html, "<script>")

	// sections keep document order
	assert.Less(t, strings.Index(html, ">Summary<"), strings.Index(html, ">Experience<"))
}

func TestBuildHTMLDefaults(t *testing.T) {
	doc, err := model.Parse("cv:\n  sections: {}\n")
	require.NoError(t, err)
	html, err := BuildHTML(doc)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Resume</h1>")
	assert.Contains(t, html, defaultAccent)
}

func TestLinkLabel(t *testing.T) {
	for in, want := range map[string]string{
		"https://www.github.com/jane/": "github.com/jane",
		"jane.github.io":               "jane.github.io",
		"http://docs.example.com/a/b":  "example.com/a/b",
		"":                             "",
	} {
		assert.Equal(t, want, LinkLabel(in), in)
	}
}

func TestChromiumEngineRejectsUnparsableDocument(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "resume.yaml")
	require.NoError(t, os.WriteFile(doc, []byte("cv: [unclosed"), 0o644))

	out, err := NewChromiumEngine("", 0).Render(context.Background(), doc, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ExitCode)
	assert.Contains(t, out.Stderr, "invalid document")
}

func TestChromiumEngineMissingDocument(t *testing.T) {
	_, err := NewChromiumEngine("", 0).Render(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	assert.Error(t, err)
}
