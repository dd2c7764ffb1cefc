package memory

import (
	"fmt"
	"strings"
	"testing"
)

func TestStore_LoadOrCreateSeedsStandardSections(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	doc, err := s.LoadOrCreateMemory(dir, "agent_admin")
	if err != nil {
		t.Fatalf("LoadOrCreateMemory: %v", err)
	}
	if len(doc.Sections) != len(StandardSections) {
		t.Fatalf("expected %d standard sections, got %d", len(StandardSections), len(doc.Sections))
	}
	if doc.Frontmatter.Version != 1 {
		t.Errorf("expected version 1 after the seed save, got %d", doc.Frontmatter.Version)
	}
}

func TestStore_WriteMemorySectionRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)
	s.LoadOrCreateMemory(dir, "agent_admin")

	res, err := s.WriteMemorySection(dir, "r1", "sess1", "agent_admin", "Working Memory", "doing X", WriteOptions{EnforceLimits: true})
	if err != nil {
		t.Fatalf("WriteMemorySection: %v", err)
	}
	if !res.Success || res.Truncated {
		t.Fatalf("unexpected result: %+v", res)
	}

	reloaded, err := s.LoadMemory(dir)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}
	sec, ok := reloaded.Section("working memory")
	if !ok {
		t.Fatal("expected case-insensitive section lookup to find Working Memory")
	}
	if sec.Content != "doing X" {
		t.Errorf("got content %q", sec.Content)
	}
	if reloaded.Frontmatter.Version != 2 {
		t.Errorf("expected version to bump to 2, got %d", reloaded.Frontmatter.Version)
	}
}

func TestStore_WriteMemorySectionCreatesWhenMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	res, err := s.WriteMemorySection(dir, "r1", "sess1", "agent_admin", "Scratch", "hi", WriteOptions{CreateIfMissing: true, EnforceLimits: true})
	if err != nil {
		t.Fatalf("WriteMemorySection: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success creating a new section: %+v", res)
	}
}

func TestStore_WriteMemorySectionRejectsMissingWithoutCreate(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)

	res, err := s.WriteMemorySection(dir, "r1", "sess1", "agent_admin", "Scratch", "hi", WriteOptions{CreateIfMissing: false})
	if err != nil {
		t.Fatalf("WriteMemorySection: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for a missing section with createIfMissing=false")
	}
}

func TestStore_TotalLimitRejectsOverflow(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)
	doc, _ := s.LoadOrCreateMemory(dir, "agent_admin")

	// Fill memory to 100 characters under the total limit, spread over extra
	// sections so no section exceeds MaxSectionSize and the append below is
	// not truncated by the per-section limit before the total check.
	for i := 0; doc.TotalSize() < MaxTotalSize-100; i++ {
		title := fmt.Sprintf("Filler %d", i)
		n := min(MaxTotalSize-100-doc.TotalSize()-len(title), MaxSectionSize/2)
		doc.Sections = append(doc.Sections, Section{Title: title, Level: 2, Content: strings.Repeat("a", n)})
	}
	if err := s.save(dir, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	versionBefore := doc.Frontmatter.Version

	res, err := s.WriteMemorySection(dir, "r1", "sess1", "agent_admin", "Important Notes", strings.Repeat("b", 500), WriteOptions{Append: true, EnforceLimits: true})
	if err != nil {
		t.Fatalf("WriteMemorySection: %v", err)
	}
	if res.Success {
		t.Fatalf("expected overflow write to fail: %+v", res)
	}
	if res.SizeLimit != MaxTotalSize {
		t.Errorf("expected sizeLimit %d, got %d", MaxTotalSize, res.SizeLimit)
	}

	reloaded, _ := s.LoadMemory(dir)
	if reloaded.Frontmatter.Version != versionBefore {
		t.Errorf("version must not change on a rejected write: before=%d after=%d", versionBefore, reloaded.Frontmatter.Version)
	}
}

func TestStore_SectionLimitExactlyAtBoundarySucceeds(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(nil)
	s.LoadOrCreateMemory(dir, "agent_admin")

	content := strings.Repeat("x", MaxSectionSize)
	res, err := s.WriteMemorySection(dir, "r1", "sess1", "agent_admin", "Key Context", content, WriteOptions{EnforceLimits: true})
	if err != nil {
		t.Fatalf("WriteMemorySection: %v", err)
	}
	if !res.Success || res.Truncated {
		t.Fatalf("a write exactly at the per-section limit must succeed without truncation: %+v", res)
	}
}

func TestDocument_ParseSerializeRoundTrip(t *testing.T) {
	doc := Seed("agent_admin", "2026-07-31")
	doc.Sections[0].Content = "line one\nline two"

	serialized := doc.Serialize()
	parsed, err := Parse(serialized)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Frontmatter.Agent != doc.Frontmatter.Agent {
		t.Errorf("agent mismatch: %q vs %q", parsed.Frontmatter.Agent, doc.Frontmatter.Agent)
	}
	if len(parsed.Sections) != len(doc.Sections) {
		t.Fatalf("section count mismatch: %d vs %d", len(parsed.Sections), len(doc.Sections))
	}
	sec, ok := parsed.Section(doc.Sections[0].Title)
	if !ok || sec.Content != doc.Sections[0].Content {
		t.Errorf("section content mismatch: %+v", sec)
	}
}
