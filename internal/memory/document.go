// Package memory implements the Memory Store: a markdown document with a
// YAML frontmatter header and an ordered list of named sections, per
// spec.md §4.5.
package memory

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Size limits from spec.md §3.
const (
	MaxTotalSize   = 50_000
	MaxSectionSize = 10_000
	MaxSections    = 20
)

// Frontmatter is the document's YAML header.
type Frontmatter struct {
	Type    string `yaml:"type"`
	Agent   string `yaml:"agent"`
	Updated string `yaml:"updated"`
	Version int    `yaml:"version"`
}

// Section is one named, leveled block of markdown content.
type Section struct {
	Title   string
	Content string
	Level   int // 1 for "#", 2 for "##"
}

// Document is the parsed memory document.
type Document struct {
	Frontmatter Frontmatter
	Sections    []Section
}

// StandardSections seeds a freshly created memory document, per spec.md
// §4.5.
var StandardSections = []string{
	"Working Memory",
	"Current State",
	"Key Context",
	"Pending Actions",
	"Important Notes",
}

// Seed builds a new document for agentID with the standard sections, all
// empty.
func Seed(agentID, today string) *Document {
	doc := &Document{Frontmatter: Frontmatter{
		Type:    "agent-memory",
		Agent:   agentID,
		Updated: today,
		Version: 0,
	}}
	for _, title := range StandardSections {
		doc.Sections = append(doc.Sections, Section{Title: title, Level: 2})
	}
	return doc
}

// Section returns the section titled title, case-insensitively.
func (d *Document) Section(title string) (*Section, bool) {
	for i := range d.Sections {
		if strings.EqualFold(d.Sections[i].Title, title) {
			return &d.Sections[i], true
		}
	}
	return nil, false
}

// TotalSize is the sum of every section's content length plus its title,
// the measure spec.md's size limits are checked against.
func (d *Document) TotalSize() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Title) + len(s.Content)
	}
	return n
}

// Parse reads a memory document from its serialised markdown form.
// frontmatterless or sectionless input parses permissively, matching the
// Agent Definition Parser's leniency (spec.md §4.10's spirit applied here).
func Parse(raw string) (*Document, error) {
	doc := &Document{}

	body := raw
	if strings.HasPrefix(strings.TrimLeft(raw, "\n"), "---") {
		trimmed := strings.TrimLeft(raw, "\n")
		rest := strings.TrimPrefix(trimmed, "---")
		end := strings.Index(rest, "\n---")
		if end >= 0 {
			fmBlock := rest[:end]
			if err := yaml.Unmarshal([]byte(fmBlock), &doc.Frontmatter); err != nil {
				return nil, fmt.Errorf("parse frontmatter: %w", err)
			}
			body = rest[end+len("\n---"):]
		}
	}

	doc.Sections = parseSections(body)
	return doc, nil
}

func parseSections(body string) []Section {
	var sections []Section
	lines := strings.Split(body, "\n")

	var current *Section
	var content strings.Builder

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(content.String())
			sections = append(sections, *current)
		}
		content.Reset()
	}

	for _, line := range lines {
		if level, title, ok := headingLine(line); ok {
			flush()
			current = &Section{Title: title, Level: level}
			continue
		}
		if current != nil {
			content.WriteString(line)
			content.WriteString("\n")
		}
	}
	flush()
	return sections
}

func headingLine(line string) (level int, title string, ok bool) {
	trimmed := strings.TrimRight(line, " \t\r")
	switch {
	case strings.HasPrefix(trimmed, "## "):
		return 2, strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")), true
	case strings.HasPrefix(trimmed, "# "):
		return 1, strings.TrimSpace(strings.TrimPrefix(trimmed, "# ")), true
	default:
		return 0, "", false
	}
}

// Serialize renders the document back to markdown: frontmatter block
// followed by each section as a heading + body.
func (d *Document) Serialize() string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("type: " + d.Frontmatter.Type + "\n")
	b.WriteString("agent: " + d.Frontmatter.Agent + "\n")
	b.WriteString("updated: " + d.Frontmatter.Updated + "\n")
	b.WriteString("version: " + strconv.Itoa(d.Frontmatter.Version) + "\n")
	b.WriteString("---\n\n")

	for _, s := range d.Sections {
		b.WriteString(strings.Repeat("#", maxInt(s.Level, 1)))
		b.WriteString(" ")
		b.WriteString(s.Title)
		b.WriteString("\n\n")
		if s.Content != "" {
			b.WriteString(s.Content)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
