// Package agentdef parses and serializes an Agent Definition: a markdown
// file with a frontmatter header and named sections, per spec.md §4.10.
package agentdef

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type is an agent's category.
type Type string

const (
	TypeAdmin   Type = "admin"
	TypeProject Type = "project"
	TypeSkill   Type = "skill"
)

// Recognised section names, per spec.md §3/§4.9 (CONTEXT assembles the
// system prompt from exactly these).
const (
	SectionIdentity     = "identity"
	SectionCapabilities = "capabilities"
	SectionGuidelines   = "guidelines"
	SectionTools        = "tools"
)

// Frontmatter is the recognised set of header keys; unknown keys are
// preserved in Extra.
type Frontmatter struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    Type   `yaml:"type"`
	Scope   string `yaml:"scope"`
	Created string `yaml:"created"`
	Updated string `yaml:"updated"`
	Status  string `yaml:"status"`
	Extra   map[string]any `yaml:"-"`
}

// Definition is one parsed agent definition. It is treated as immutable
// once loaded for a run, per spec.md §3.
type Definition struct {
	Frontmatter  Frontmatter
	Instructions string            // free-text body outside any named section
	Sections     map[string]string // lower-cased section name -> markdown body
}

// Path returns <agentPath>/AGENT.md.
func Path(agentPath string) string { return filepath.Join(agentPath, "AGENT.md") }

// Load reads and parses the agent definition at agentPath.
func Load(agentPath string) (*Definition, error) {
	raw, err := os.ReadFile(Path(agentPath))
	if err != nil {
		return nil, err
	}
	return Parse(string(raw))
}

// Parse is permissive: missing frontmatter yields an empty Frontmatter,
// missing sections yield an empty map.
func Parse(raw string) (*Definition, error) {
	def := &Definition{Sections: make(map[string]string)}

	body := raw
	trimmed := strings.TrimLeft(raw, "\n")
	if strings.HasPrefix(trimmed, "---") {
		rest := strings.TrimPrefix(trimmed, "---")
		if end := strings.Index(rest, "\n---"); end >= 0 {
			fmBlock := rest[:end]
			var known map[string]any
			if err := yaml.Unmarshal([]byte(fmBlock), &known); err == nil {
				def.Frontmatter = frontmatterFromMap(known)
			}
			body = rest[end+len("\n---"):]
		}
	}

	def.Instructions, def.Sections = parseBody(body)
	return def, nil
}

func frontmatterFromMap(m map[string]any) Frontmatter {
	fm := Frontmatter{Extra: make(map[string]any)}
	for k, v := range m {
		s, _ := v.(string)
		switch strings.ToLower(k) {
		case "id":
			fm.ID = s
		case "name":
			fm.Name = s
		case "type":
			fm.Type = Type(s)
		case "scope":
			fm.Scope = s
		case "created":
			fm.Created = s
		case "updated":
			fm.Updated = s
		case "status":
			fm.Status = s
		default:
			fm.Extra[k] = v
		}
	}
	return fm
}

// parseBody splits the body into free-text instructions (everything
// before the first heading) and a map of named sections, keyed
// lower-case for case-insensitive lookup.
func parseBody(body string) (instructions string, sections map[string]string) {
	sections = make(map[string]string)
	lines := strings.Split(body, "\n")

	var preamble strings.Builder
	var currentTitle string
	var currentBody strings.Builder
	inSection := false

	flush := func() {
		if inSection {
			sections[strings.ToLower(currentTitle)] = strings.TrimSpace(currentBody.String())
		}
		currentBody.Reset()
	}

	for _, line := range lines {
		trimmedLine := strings.TrimRight(line, " \t\r")
		if strings.HasPrefix(trimmedLine, "## ") || strings.HasPrefix(trimmedLine, "# ") {
			flush()
			currentTitle = strings.TrimSpace(strings.TrimLeft(trimmedLine, "# "))
			inSection = true
			continue
		}
		if inSection {
			currentBody.WriteString(line)
			currentBody.WriteString("\n")
		} else {
			preamble.WriteString(line)
			preamble.WriteString("\n")
		}
	}
	flush()

	return strings.TrimSpace(preamble.String()), sections
}

// Serialize renders the definition back to its markdown form.
func (d *Definition) Serialize() string {
	var b strings.Builder
	b.WriteString("---\n")
	writeIfSet(&b, "id", d.Frontmatter.ID)
	writeIfSet(&b, "name", d.Frontmatter.Name)
	writeIfSet(&b, "type", string(d.Frontmatter.Type))
	writeIfSet(&b, "scope", d.Frontmatter.Scope)
	writeIfSet(&b, "created", d.Frontmatter.Created)
	writeIfSet(&b, "updated", d.Frontmatter.Updated)
	writeIfSet(&b, "status", d.Frontmatter.Status)
	for k, v := range d.Frontmatter.Extra {
		if s, ok := v.(string); ok {
			writeIfSet(&b, k, s)
		}
	}
	b.WriteString("---\n\n")

	if d.Instructions != "" {
		b.WriteString(d.Instructions)
		b.WriteString("\n\n")
	}

	for _, name := range []string{SectionIdentity, SectionCapabilities, SectionGuidelines, SectionTools} {
		content, ok := d.Sections[name]
		if !ok {
			continue
		}
		b.WriteString("## " + capitalize(name) + "\n\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeIfSet(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(key + ": " + value + "\n")
}

// Section returns a named section's body, case-insensitive.
func (d *Definition) Section(name string) (string, bool) {
	s, ok := d.Sections[strings.ToLower(name)]
	return s, ok
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
