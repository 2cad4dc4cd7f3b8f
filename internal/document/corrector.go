package document

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"resume-renderer/internal/logging"
	"resume-renderer/internal/model"

	"gopkg.in/yaml.v3"
)

const (
	ContentKey      = "cv"
	PresentationKey = "design"
	SectionsKey     = "sections"
	ThemeKey        = "theme"
	DefaultName     = "Resume"
)

// topLevelOrder is the canonical order of permitted top-level keys.
var topLevelOrder = []string{ContentKey, PresentationKey, "locale", "rendercv_settings"}

// contentFields are keys that belong under the content block when the
// generator emits them at the top level.
var contentFields = map[string]bool{
	"name": true, "label": true, "location": true, "email": true, "phone": true,
	"website": true, "photo": true, "social_networks": true,
	"custom_connections": true, SectionsKey: true,
}

type Options struct {
	// DefaultTheme is inserted when the document carries no presentation block.
	DefaultTheme string
	// Strict rejects unknown top-level keys instead of filtering them.
	Strict bool
	// SkipSchema disables the schema check after structural repair.
	SkipSchema bool
}

// Corrected is a document that parsed and passed structural validation.
type Corrected struct {
	Text     string
	Name     string
	Filename string
	Report   Report
}

type Corrector struct {
	opts        Options
	relocatable map[string]bool
	logger      *slog.Logger
}

func NewCorrector(opts Options, logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = logging.Nop()
	}
	if strings.TrimSpace(opts.DefaultTheme) == "" {
		opts.DefaultTheme = "sb2nov"
	}
	reloc := map[string]bool{}
	for _, k := range topLevelOrder[1:] {
		reloc[k] = true
	}
	return &Corrector{opts: opts, relocatable: reloc, logger: logger}
}

// Correct normalizes raw generator output into a document the typesetting
// engine accepts, or returns a *ValidationError describing why it cannot.
func (c *Corrector) Correct(raw string) (*Corrected, error) {
	var report Report

	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil, invalid(EmptyDocument, "document is empty")
	}
	lines, moved, dup := extractMisplaced(lines, ContentKey, c.relocatable)
	for _, m := range moved {
		report.add("relocated %q from inside %q (indent %d) to the top level", m.key, ContentKey, m.depth)
	}
	for _, k := range dup {
		report.drop(fmt.Sprintf("%s.%s (duplicate)", ContentKey, k))
	}
	text := reindent(lines)

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &ValidationError{Kind: ParseError, Reason: err.Error(), Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 || isNull(doc.Content[0]) {
		return nil, invalid(EmptyDocument, "document is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, invalid(NotAMapping, "document must be a mapping with top-level keys %q and %q", ContentKey, PresentationKey)
	}

	name, err := c.repair(root, &report)
	if err != nil {
		return nil, err
	}

	if !c.opts.SkipSchema {
		var m map[string]interface{}
		if err := root.Decode(&m); err != nil {
			return nil, &ValidationError{Kind: SchemaViolation, Reason: err.Error(), Err: err}
		}
		if err := model.ValidateMap(m); err != nil {
			return nil, &ValidationError{Kind: SchemaViolation, Reason: err.Error(), Err: err}
		}
	}

	out, err := encode(root)
	if err != nil {
		return nil, &ValidationError{Kind: ParseError, Reason: err.Error(), Err: err}
	}
	report.Diff = lineDiff(raw, out)

	if report.Changed() {
		c.logger.Debug("document.corrected", "name", name, "repairs", len(report.Repairs), "dropped", report.Dropped)
	}
	return &Corrected{Text: out, Name: name, Filename: ExpectedFilename(name), Report: report}, nil
}

// repair rewrites the top-level mapping in place: it relocates stray content
// fields, filters unknown keys, fills required sub-keys and orders the result.
func (c *Corrector) repair(root *yaml.Node, report *Report) (string, error) {
	top := map[string]*yaml.Node{}
	var stray [][2]*yaml.Node
	var unknown []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		switch {
		case top[k.Value] != nil:
			report.drop(k.Value + " (duplicate)")
		case isPermitted(k.Value):
			top[k.Value] = v
		case contentFields[k.Value]:
			stray = append(stray, [2]*yaml.Node{k, v})
		default:
			unknown = append(unknown, k.Value)
		}
	}

	cv := top[ContentKey]
	if cv == nil || isNull(cv) {
		return "", invalid(MissingRequiredKey, "missing required top-level key %q", ContentKey)
	}
	if cv.Kind != yaml.MappingNode {
		return "", invalid(NotAMapping, "%q must be a mapping of personal fields and %q", ContentKey, SectionsKey)
	}

	for _, kv := range stray {
		if lookup(cv, kv[0].Value) != nil {
			report.drop(kv[0].Value + " (top level, already under " + ContentKey + ")")
			continue
		}
		cv.Content = append(cv.Content, kv[0], kv[1])
		report.add("moved top-level %q under %q", kv[0].Value, ContentKey)
	}

	// presentation blocks nested directly under content
	for _, k := range topLevelOrder[1:] {
		kn, vn := remove(cv, k)
		if kn == nil {
			continue
		}
		if top[k] != nil {
			report.drop(ContentKey + "." + k + " (duplicate)")
			continue
		}
		top[k] = vn
		report.add("relocated %q from inside %q to the top level", k, ContentKey)
	}

	if err := c.repairSections(cv, report); err != nil {
		return "", err
	}
	c.repairDesign(cv, top, report)

	if len(unknown) > 0 {
		sort.Strings(unknown)
		if c.opts.Strict {
			return "", invalid(DisallowedTopLevelKeys, "top-level keys %s are not allowed; only %q and %q may appear at the top level",
				strings.Join(unknown, ", "), ContentKey, PresentationKey)
		}
		for _, k := range unknown {
			report.drop(k)
		}
	}

	content := make([]*yaml.Node, 0, 2*len(top))
	for _, k := range topLevelOrder {
		if v := top[k]; v != nil {
			content = append(content, scalar(k), v)
		}
	}
	root.Content = content

	name := DefaultName
	if n := lookup(cv, "name"); n != nil && n.Kind == yaml.ScalarNode && strings.TrimSpace(n.Value) != "" && !isNull(n) {
		name = strings.TrimSpace(n.Value)
	}
	return name, nil
}

func (c *Corrector) repairSections(cv *yaml.Node, report *Report) error {
	sections := lookup(cv, SectionsKey)
	if sections == nil || isNull(sections) {
		empty := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if sections == nil {
			cv.Content = append(cv.Content, scalar(SectionsKey), empty)
		} else {
			*sections = *empty
		}
		report.add("%s: inserted empty %q under %q", MissingRequiredSubkey, SectionsKey, ContentKey)
		return nil
	}
	if sections.Kind != yaml.MappingNode {
		return invalid(MissingRequiredSubkey, "%q must be a mapping of section title to a list of entries", ContentKey+"."+SectionsKey)
	}
	kept := sections.Content[:0]
	for i := 0; i+1 < len(sections.Content); i += 2 {
		k, v := sections.Content[i], sections.Content[i+1]
		switch {
		case isNull(v):
			report.drop(SectionsKey + "." + k.Value + " (empty)")
			continue
		case v.Kind == yaml.ScalarNode || v.Kind == yaml.MappingNode:
			wrapped := *v
			*v = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{&wrapped}}
			report.add("wrapped section %q into a list", k.Value)
		}
		kept = append(kept, k, v)
	}
	sections.Content = kept
	return nil
}

func (c *Corrector) repairDesign(cv *yaml.Node, top map[string]*yaml.Node, report *Report) {
	_, theme := remove(cv, ThemeKey)
	if theme != nil && (theme.Kind != yaml.ScalarNode || isNull(theme)) {
		report.drop(ContentKey + "." + ThemeKey)
		theme = nil
	}
	design := top[PresentationKey]
	if design == nil || isNull(design) {
		design = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		top[PresentationKey] = design
		if theme == nil {
			report.add("inserted %q with default theme %q", PresentationKey, c.opts.DefaultTheme)
		}
	}
	if design.Kind != yaml.MappingNode {
		report.drop(PresentationKey + " (not a mapping)")
		design = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		top[PresentationKey] = design
	}
	if lookup(design, ThemeKey) != nil {
		if theme != nil {
			report.drop(ContentKey + "." + ThemeKey + " (design already has a theme)")
		}
		return
	}
	if theme != nil {
		design.Content = append([]*yaml.Node{scalar(ThemeKey), theme}, design.Content...)
		report.add("moved %q from %q into %q", ThemeKey, ContentKey, PresentationKey)
		return
	}
	design.Content = append([]*yaml.Node{scalar(ThemeKey), scalar(c.opts.DefaultTheme)}, design.Content...)
}

func isPermitted(key string) bool {
	for _, k := range topLevelOrder {
		if k == key {
			return true
		}
	}
	return false
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func remove(m *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			k, v := m.Content[i], m.Content[i+1]
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return k, v
		}
	}
	return nil, nil
}

func encode(root *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(IndentUnit)
	if err := enc.Encode(root); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slug reduces a display name to ASCII letters, digits and underscores.
func Slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(s, "_"), "_")
}

// ExpectedFilename is the artifact name the engine conventionally produces
// for a document whose person is called name.
func ExpectedFilename(name string) string {
	slug := Slug(name)
	if slug == "" {
		slug = DefaultName
	}
	return slug + "_CV.pdf"
}

// DisplayName extracts cv.name from document text without correcting it.
func DisplayName(text string) string {
	var doc struct {
		CV struct {
			Name string `yaml:"name"`
		} `yaml:"cv"`
	}
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return DefaultName
	}
	if n := strings.TrimSpace(doc.CV.Name); n != "" {
		return n
	}
	return DefaultName
}
