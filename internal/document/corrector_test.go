package document

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestCorrector() *Corrector {
	return NewCorrector(Options{DefaultTheme: "sb2nov"}, nil)
}

func decode(t *testing.T, text string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(text), &m))
	return m
}

func dig(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[p]
	}
	return cur
}

func TestCorrectCanonicalOrder(t *testing.T) {
	raw := `design:
  theme: classic
cv:
  name: Jane Doe
  sections:
    experience:
      - company: Acme
        position: Engineer
`
	want := `cv:
  name: Jane Doe
  sections:
    experience:
      - company: Acme
        position: Engineer
design:
  theme: classic
`
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got.Text); diff != "" {
		t.Fatalf("corrected text mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Jane Doe", got.Name)
	assert.Equal(t, "Jane_Doe_CV.pdf", got.Filename)
	assert.False(t, got.Report.Changed())
}

func TestCorrectRelocatesNestedDesign(t *testing.T) {
	raw := `cv:
  name: Jane Doe
  sections:
    skills:
      - label: Languages
        details: Go, SQL
    design:
      theme: engineeringresumes
`
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)

	m := decode(t, got.Text)
	assert.Equal(t, "engineeringresumes", dig(m, "design", "theme"))
	assert.Nil(t, dig(m, "cv", "sections", "design"))
	skills, ok := dig(m, "cv", "sections", "skills").([]any)
	require.True(t, ok)
	assert.Len(t, skills, 1)
	assert.NotEmpty(t, got.Report.Repairs)
}

func TestCorrectInlineDesignInsideContent(t *testing.T) {
	raw := "cv:\n  name: A\n  design: {theme: classic}\n  sections: {}\n"
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	m := decode(t, got.Text)
	assert.Equal(t, "classic", dig(m, "design", "theme"))
	assert.Nil(t, dig(m, "cv", "design"))
}

func TestCorrectTopLevelDesignWinsOverNested(t *testing.T) {
	raw := `cv:
  name: A
  sections: {}
  design:
    theme: nested
design:
  theme: top
`
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	m := decode(t, got.Text)
	assert.Equal(t, "top", dig(m, "design", "theme"))
	assert.Contains(t, got.Report.Dropped, "cv.design (duplicate)")
}

func TestCorrectInsertsMissingSections(t *testing.T) {
	got, err := newTestCorrector().Correct("cv:\n  name: Jane\n")
	require.NoError(t, err)
	m := decode(t, got.Text)
	assert.Equal(t, map[string]any{}, dig(m, "cv", "sections"))
	assert.Equal(t, "sb2nov", dig(m, "design", "theme"))
	require.NotEmpty(t, got.Report.Repairs)
	assert.Contains(t, got.Report.Repairs[0], string(MissingRequiredSubkey))
}

func TestCorrectNullSectionsReplaced(t *testing.T) {
	got, err := newTestCorrector().Correct("cv:\n  name: Jane\n  sections:\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, dig(decode(t, got.Text), "cv", "sections"))
}

func TestCorrectMisindentedDocument(t *testing.T) {
	raw := `cv:
   name: Jane
   sections:
       experience:
           - company: Acme
             position: Dev
             highlights:
                  - Shipped things
`
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	m := decode(t, got.Text)
	exp, ok := dig(m, "cv", "sections", "experience").([]any)
	require.True(t, ok)
	require.Len(t, exp, 1)
	entry := exp[0].(map[string]any)
	assert.Equal(t, "Acme", entry["company"])
	assert.Equal(t, "Dev", entry["position"])
	assert.Equal(t, []any{"Shipped things"}, entry["highlights"])
}

func TestCorrectOverIndentedSibling(t *testing.T) {
	raw := "cv:\n  name: Jane\n    email: jane@example.com\n  sections: {}\n"
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	m := decode(t, got.Text)
	assert.Equal(t, "Jane", dig(m, "cv", "name"))
	assert.Equal(t, "jane@example.com", dig(m, "cv", "email"))
}

func TestCorrectStripsFencesTabsAndComments(t *testing.T) {
	raw := "```yaml\r\n# generated resume\r\ncv:\r\n\tname: Jane\r\n\tsections: {}\r\n```\r\n"
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	assert.NotContains(t, got.Text, "```")
	assert.NotContains(t, got.Text, "generated resume")
	assert.Equal(t, "Jane", dig(decode(t, got.Text), "cv", "name"))
}

func TestCorrectPreservesBlockScalars(t *testing.T) {
	raw := `cv:
  name: Jane
  sections:
    summary:
      - |
        Line one
          indented
`
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	summary, ok := dig(decode(t, got.Text), "cv", "sections", "summary").([]any)
	require.True(t, ok)
	require.Len(t, summary, 1)
	assert.True(t, strings.HasPrefix(summary[0].(string), "Line one\n  indented"), "got %q", summary[0])
}

func TestCorrectWrapsScalarSectionsAndDropsEmpty(t *testing.T) {
	raw := `cv:
  name: Jane
  sections:
    summary: Builds reliable systems.
    empty:
    education:
      institution: MIT
      area: CS
`
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	m := decode(t, got.Text)
	assert.Equal(t, []any{"Builds reliable systems."}, dig(m, "cv", "sections", "summary"))
	edu, ok := dig(m, "cv", "sections", "education").([]any)
	require.True(t, ok)
	assert.Len(t, edu, 1)
	assert.Nil(t, dig(m, "cv", "sections", "empty"))
	assert.Contains(t, got.Report.Dropped, "sections.empty (empty)")
}

func TestCorrectMovesThemeAndTopLevelFields(t *testing.T) {
	raw := "name: Jane Roe\nemail: jane@example.com\ncv:\n  theme: classic\n  sections: {}\n"
	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	m := decode(t, got.Text)
	assert.Equal(t, "Jane Roe", dig(m, "cv", "name"))
	assert.Equal(t, "jane@example.com", dig(m, "cv", "email"))
	assert.Nil(t, dig(m, "cv", "theme"))
	assert.Equal(t, "classic", dig(m, "design", "theme"))
	assert.Equal(t, "Jane_Roe_CV.pdf", got.Filename)
}

func TestCorrectUnknownTopLevelKeys(t *testing.T) {
	raw := "cv:\n  name: Jane\n  sections: {}\nnotes: remove me\nextra: 1\n"

	got, err := newTestCorrector().Correct(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"extra", "notes"}, got.Report.Dropped)
	assert.NotContains(t, got.Text, "notes")

	strict := NewCorrector(Options{Strict: true}, nil)
	_, err = strict.Correct(raw)
	require.Error(t, err)
	assert.Equal(t, DisallowedTopLevelKeys, KindOf(err))
}

func TestCorrectFailures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind Kind
	}{
		{"empty", "   \n\n", EmptyDocument},
		{"empty fence", "```yaml\n```", EmptyDocument},
		{"null document", "~\n", EmptyDocument},
		{"unparseable", "cv: [unclosed\n", ParseError},
		{"scalar document", "just some prose", NotAMapping},
		{"list document", "- cv\n- design\n", NotAMapping},
		{"missing content", "design:\n  theme: classic\n", MissingRequiredKey},
		{"null content", "cv:\ndesign:\n  theme: classic\n", MissingRequiredKey},
		{"sections not a mapping", "cv:\n  sections:\n    - a\n", MissingRequiredSubkey},
		{"schema", "cv:\n  social_networks:\n    - network: GitHub\n  sections: {}\n", SchemaViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestCorrector().Correct(tc.raw)
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err), "error: %v", err)
		})
	}
}

func TestCorrectIsIdempotent(t *testing.T) {
	inputs := []string{
		"cv:\n  name: Jane\n",
		"cv:\n   name: Jane\n   sections:\n       skills:\n           - label: Go\n             details: expert\n  design:\n    theme: classic\n",
		"name: A\ncv:\n  sections:\n    summary: hi\n",
	}
	c := newTestCorrector()
	for _, in := range inputs {
		first, err := c.Correct(in)
		require.NoError(t, err)
		second, err := c.Correct(first.Text)
		require.NoError(t, err)
		if diff := cmp.Diff(first.Text, second.Text); diff != "" {
			t.Errorf("second pass changed document (-first +second):\n%s", diff)
		}
		assert.False(t, second.Report.Changed(), "repairs on canonical input: %v", second.Report)
	}
}

func TestNameFallback(t *testing.T) {
	got, err := newTestCorrector().Correct("cv:\n  sections: {}\n")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, got.Name)
	assert.Equal(t, "Resume_CV.pdf", got.Filename)
}

func TestExpectedFilename(t *testing.T) {
	cases := map[string]string{
		"Jane Doe":          "Jane_Doe_CV.pdf",
		"Jane O'Neil-Smith": "Jane_O_Neil_Smith_CV.pdf",
		"  --  ":            "Resume_CV.pdf",
		"":                  "Resume_CV.pdf",
		"Ana  Lúcia":        "Ana_L_cia_CV.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExpectedFilename(in), in)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane", DisplayName("cv:\n  name: Jane\n"))
	assert.Equal(t, DefaultName, DisplayName("cv: ["))
	assert.Equal(t, DefaultName, DisplayName("design: {}\n"))
}

func TestReportDiff(t *testing.T) {
	got, err := newTestCorrector().Correct("cv:\n  name: Jane\n")
	require.NoError(t, err)
	assert.Contains(t, got.Report.Diff, "+ design:")
	assert.Contains(t, got.Report.Summary(), "repaired: ")
}
