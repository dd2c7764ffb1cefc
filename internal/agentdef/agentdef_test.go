package agentdef

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sample = `---
id: agent-123
name: Research Assistant
type: project
scope: research/*
created: 2026-01-01T00:00:00Z
updated: 2026-01-02T00:00:00Z
status: active
---

You help with research tasks.

## Identity

A careful, citation-minded research assistant.

## Capabilities

Can search, summarize, and draft reports.

## Guidelines

Always cite sources.

## Tools

read, grep, webfetch
`

func TestParseExtractsFrontmatterAndSections(t *testing.T) {
	def, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Frontmatter.ID != "agent-123" {
		t.Errorf("expected id agent-123, got %q", def.Frontmatter.ID)
	}
	if def.Frontmatter.Type != TypeProject {
		t.Errorf("expected type project, got %q", def.Frontmatter.Type)
	}
	if def.Instructions != "You help with research tasks." {
		t.Errorf("unexpected instructions: %q", def.Instructions)
	}
	if s, ok := def.Section("identity"); !ok || s != "A careful, citation-minded research assistant." {
		t.Errorf("unexpected identity section: %q (ok=%v)", s, ok)
	}
	if s, ok := def.Section("TOOLS"); !ok || s != "read, grep, webfetch" {
		t.Errorf("expected case-insensitive tools lookup, got %q (ok=%v)", s, ok)
	}
}

func TestParseMissingFrontmatterYieldsEmptyMetadata(t *testing.T) {
	def, err := Parse("## Identity\n\nJust a plain agent.\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Frontmatter.ID != "" || def.Frontmatter.Name != "" {
		t.Errorf("expected empty frontmatter, got %+v", def.Frontmatter)
	}
	if s, _ := def.Section("identity"); s != "Just a plain agent." {
		t.Errorf("unexpected identity section: %q", s)
	}
}

func TestParseMissingSectionsYieldsEmptyMapping(t *testing.T) {
	def, err := Parse("---\nid: bare\n---\n\nNo sections here at all.\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(def.Sections) != 0 {
		t.Errorf("expected no sections, got %v", def.Sections)
	}
	if def.Instructions != "No sections here at all." {
		t.Errorf("unexpected instructions: %q", def.Instructions)
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	def, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	reparsed, err := Parse(def.Serialize())
	if err != nil {
		t.Fatalf("Parse(Serialize): %v", err)
	}

	if !reflect.DeepEqual(reparsed.Frontmatter, def.Frontmatter) {
		t.Errorf("frontmatter mismatch after round trip:\n  got:  %+v\n  want: %+v", reparsed.Frontmatter, def.Frontmatter)
	}
	if reparsed.Instructions != def.Instructions {
		t.Errorf("instructions mismatch after round trip: got %q want %q", reparsed.Instructions, def.Instructions)
	}
	for name, body := range def.Sections {
		if reparsed.Sections[name] != body {
			t.Errorf("section %q mismatch after round trip: got %q want %q", name, reparsed.Sections[name], body)
		}
	}
}

func TestLoadReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "AGENT.md"), []byte(sample), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	def, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Frontmatter.Name != "Research Assistant" {
		t.Errorf("unexpected name: %q", def.Frontmatter.Name)
	}
}
