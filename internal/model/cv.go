package model

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Go models for the typeset document. The corrector works on raw YAML nodes;
// these typed views are used by renderers that need field access.

type Document struct {
	CV     CV     `yaml:"cv" json:"cv"`
	Design Design `yaml:"design" json:"design"`
}

type Design struct {
	Theme string `yaml:"theme" json:"theme"`
}

type SocialNetwork struct {
	Network  string `yaml:"network" json:"network"`
	Username string `yaml:"username" json:"username"`
}

type CV struct {
	Name           string          `yaml:"name" json:"name"`
	Label          string          `yaml:"label,omitempty" json:"label,omitempty"`
	Location       string          `yaml:"location,omitempty" json:"location,omitempty"`
	Email          string          `yaml:"email,omitempty" json:"email,omitempty"`
	Phone          string          `yaml:"phone,omitempty" json:"phone,omitempty"`
	Website        string          `yaml:"website,omitempty" json:"website,omitempty"`
	SocialNetworks []SocialNetwork `yaml:"social_networks,omitempty" json:"social_networks,omitempty"`
	// Sections keeps the raw node so that section order survives decoding.
	Sections yaml.Node `yaml:"sections" json:"-"`
}

// Entry is the union of the entry shapes the engine understands. A plain
// string entry only sets Text.
type Entry struct {
	Text        string   `yaml:"-"`
	Company     string   `yaml:"company"`
	Position    string   `yaml:"position"`
	Institution string   `yaml:"institution"`
	Area        string   `yaml:"area"`
	Degree      string   `yaml:"degree"`
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title"`
	Label       string   `yaml:"label"`
	Details     string   `yaml:"details"`
	Bullet      string   `yaml:"bullet"`
	Location    string   `yaml:"location"`
	StartDate   string   `yaml:"start_date"`
	EndDate     string   `yaml:"end_date"`
	Date        string   `yaml:"date"`
	Summary     string   `yaml:"summary"`
	URL         string   `yaml:"url"`
	Highlights  []string `yaml:"highlights"`
}

// Heading returns the primary line of an entry.
func (e Entry) Heading() string {
	for _, s := range []string{e.Text, e.Company, e.Institution, e.Name, e.Title, e.Label, e.Bullet} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Subheading returns the secondary line of an entry.
func (e Entry) Subheading() string {
	switch {
	case e.Position != "":
		return e.Position
	case e.Degree != "" && e.Area != "":
		return e.Degree + " in " + e.Area
	case e.Degree != "":
		return e.Degree
	case e.Area != "":
		return e.Area
	case e.Details != "":
		return e.Details
	}
	return ""
}

// Period renders the date span of an entry.
func (e Entry) Period() string {
	if e.Date != "" {
		return e.Date
	}
	switch {
	case e.StartDate != "" && e.EndDate != "":
		return e.StartDate + " – " + e.EndDate
	case e.StartDate != "":
		return e.StartDate + " – present"
	}
	return e.EndDate
}

type Section struct {
	Title   string
	Entries []Entry
}

// OrderedSections decodes the sections mapping in document order. Entries that
// cannot be decoded are skipped.
func (c CV) OrderedSections() []Section {
	n := &c.Sections
	if n.Kind != yaml.MappingNode {
		return nil
	}
	var out []Section
	for i := 0; i+1 < len(n.Content); i += 2 {
		sec := Section{Title: sectionTitle(n.Content[i].Value)}
		items := n.Content[i+1]
		if items.Kind != yaml.SequenceNode {
			continue
		}
		for _, item := range items.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				sec.Entries = append(sec.Entries, Entry{Text: item.Value})
			case yaml.MappingNode:
				var e Entry
				if err := item.Decode(&e); err == nil {
					sec.Entries = append(sec.Entries, e)
				}
			}
		}
		out = append(out, sec)
	}
	return out
}

func sectionTitle(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Parse decodes corrected document text into the typed view.
func Parse(text string) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
