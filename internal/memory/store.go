package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/rterr"
	"github.com/agentvault/runtime/internal/storage"
)

// Store reads and writes the memory document at <agentPath>/MEMORY.md.
type Store struct {
	// Bus receives memory:read/memory:write events. Nil disables emission.
	Bus *event.Bus
}

// NewStore creates a Store.
func NewStore(bus *event.Bus) *Store {
	return &Store{Bus: bus}
}

func memoryPath(agentPath string) string {
	return filepath.Join(agentPath, "MEMORY.md")
}

func (s *Store) publish(t event.Type, runID, sessionID, agentID string, data any) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(event.Envelope{
		Type: t, RunID: runID, SessionID: sessionID, AgentID: agentID,
		Timestamp: time.Now().UnixMilli(), Data: data,
	})
}

// LoadMemory parses the existing document, or returns (nil, nil) if
// absent.
func (s *Store) LoadMemory(agentPath string) (*Document, error) {
	raw, err := os.ReadFile(memoryPath(agentPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	return Parse(string(raw))
}

// LoadOrCreateMemory loads the document, seeding a fresh one with the
// standard sections if none exists.
func (s *Store) LoadOrCreateMemory(agentPath, agentID string) (*Document, error) {
	doc, err := s.LoadMemory(agentPath)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		return doc, nil
	}
	doc = Seed(agentID, today())
	if err := s.save(agentPath, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func today() string { return time.Now().UTC().Format("2006-01-02") }

func (s *Store) save(agentPath string, doc *Document) error {
	path := memoryPath(agentPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}

	lock := storage.NewFileLock(path)
	if err := lock.Lock(); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	defer lock.Unlock()

	doc.Frontmatter.Version++
	doc.Frontmatter.Updated = today()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(doc.Serialize()), 0o644); err != nil {
		return rterr.Wrap(rterr.TransientIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return rterr.Wrap(rterr.TransientIO, err)
	}
	return nil
}

// WriteOptions controls WriteMemorySection's behavior.
type WriteOptions struct {
	Append         bool
	CreateIfMissing bool
	EnforceLimits   bool
}

// WriteResult reports what a section write actually did.
type WriteResult struct {
	Success   bool
	Section   string
	Truncated bool
	Error     string
	SizeUsed  int
	SizeLimit int
}

// WriteMemorySection writes (or appends to) one section, case-insensitive
// by title, honoring the per-section and total size limits.
func (s *Store) WriteMemorySection(agentPath, runID, sessionID, agentID, title, content string, opts WriteOptions) (WriteResult, error) {
	doc, err := s.LoadOrCreateMemory(agentPath, agentID)
	if err != nil {
		return WriteResult{}, err
	}

	sec, found := doc.Section(title)
	if !found {
		if !opts.CreateIfMissing {
			res := WriteResult{Success: false, Section: title, Error: "section not found: " + title}
			return res, nil
		}
		if len(doc.Sections) >= MaxSections {
			res := WriteResult{Success: false, Section: title, Error: fmt.Sprintf("section count limit reached (%d)", MaxSections)}
			return res, nil
		}
		doc.Sections = append(doc.Sections, Section{Title: title, Level: 2})
		sec, _ = doc.Section(title)
	}

	newContent := content
	if opts.Append && sec.Content != "" {
		newContent = sec.Content + "\n" + content
	}

	truncated := false
	if opts.EnforceLimits && len(newContent) > MaxSectionSize {
		newContent = truncateAtBoundary(newContent, MaxSectionSize)
		truncated = true
	}

	prevContent := sec.Content
	sec.Content = newContent

	if opts.EnforceLimits {
		total := doc.TotalSize()
		if total > MaxTotalSize {
			sec.Content = prevContent // revert, reject the write outright
			res := WriteResult{
				Success: false, Section: title,
				Error:     "write would exceed total memory limit",
				SizeUsed:  total,
				SizeLimit: MaxTotalSize,
			}
			s.publish(event.MemoryWrite, runID, sessionID, agentID, event.MemoryWriteData{
				MemoryPath: memoryPath(agentPath), Section: title,
				SizeUsed: total, SizeLimit: MaxTotalSize, Truncated: false, Success: false,
			})
			return res, nil
		}
	}

	if err := s.save(agentPath, doc); err != nil {
		return WriteResult{}, err
	}

	sizeUsed := doc.TotalSize()
	s.publish(event.MemoryWrite, runID, sessionID, agentID, event.MemoryWriteData{
		MemoryPath: memoryPath(agentPath), Section: title,
		SizeUsed: sizeUsed, SizeLimit: MaxTotalSize, Truncated: truncated, Success: true,
	})

	return WriteResult{
		Success:   true,
		Section:   title,
		Truncated: truncated,
		SizeUsed:  sizeUsed,
		SizeLimit: MaxTotalSize,
	}, nil
}

// truncateAtBoundary cuts content to at most limit bytes, preferring the
// last newline at or before 80% of the budget, and tags the cut.
func truncateAtBoundary(content string, limit int) string {
	budget := int(float64(limit) * 0.8)
	if budget <= 0 || budget >= len(content) {
		budget = limit
	}
	cut := budget
	if idx := strings.LastIndexByte(content[:min(budget, len(content))], '\n'); idx > 0 {
		cut = idx
	}
	if cut > limit {
		cut = limit
	}
	return content[:cut] + "\n\n[truncated]"
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Update is one item in a batched ApplyMemoryUpdates call.
type Update struct {
	Title   string
	Content string
	Append  bool
}

// ApplyMemoryUpdates applies a batch of section updates. Non-existent
// sections are created if room remains under MaxSections.
func (s *Store) ApplyMemoryUpdates(agentPath, runID, sessionID, agentID string, updates []Update) ([]WriteResult, error) {
	results := make([]WriteResult, 0, len(updates))
	for _, u := range updates {
		res, err := s.WriteMemorySection(agentPath, runID, sessionID, agentID, u.Title, u.Content, WriteOptions{
			Append: u.Append, CreateIfMissing: true, EnforceLimits: true,
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ReadResult is ReadMemorySection's return shape: either one section's
// content, or (when title is empty) the whole raw document plus its
// section titles.
type ReadResult struct {
	Content      string
	SectionTitle string
	AllTitles    []string
	Found        bool
}

// ReadMemorySection reads one section by title, or the whole document
// when title is empty.
func (s *Store) ReadMemorySection(agentPath, runID, sessionID, agentID, title string) (ReadResult, error) {
	doc, err := s.LoadMemory(agentPath)
	if err != nil {
		return ReadResult{}, err
	}
	if doc == nil {
		s.publish(event.MemoryRead, runID, sessionID, agentID, event.MemoryReadData{
			MemoryPath: memoryPath(agentPath), Success: false,
		})
		return ReadResult{}, nil
	}

	titles := make([]string, len(doc.Sections))
	for i, sec := range doc.Sections {
		titles[i] = sec.Title
	}

	s.publish(event.MemoryRead, runID, sessionID, agentID, event.MemoryReadData{
		MemoryPath: memoryPath(agentPath), SectionCount: len(doc.Sections), TotalSize: doc.TotalSize(), Success: true,
	})

	if title == "" {
		return ReadResult{Content: doc.Serialize(), AllTitles: titles, Found: true}, nil
	}

	sec, found := doc.Section(title)
	if !found {
		return ReadResult{AllTitles: titles, Found: false}, nil
	}
	return ReadResult{Content: sec.Content, SectionTitle: sec.Title, AllTitles: titles, Found: true}, nil
}

// Stats is GetMemoryStats' derived-metrics return shape.
type Stats struct {
	SectionCount int
	TotalSize    int
	SizeLimit    int
	Version      int
}

// GetMemoryStats reports size/section counters used by the loop and
// emitted as events.
func (s *Store) GetMemoryStats(agentPath string) (Stats, error) {
	doc, err := s.LoadMemory(agentPath)
	if err != nil {
		return Stats{}, err
	}
	if doc == nil {
		return Stats{SizeLimit: MaxTotalSize}, nil
	}
	return Stats{
		SectionCount: len(doc.Sections),
		TotalSize:    doc.TotalSize(),
		SizeLimit:    MaxTotalSize,
		Version:      doc.Frontmatter.Version,
	}, nil
}

// CheckMemoryLimits reports whether the current document is within every
// configured limit.
func (s *Store) CheckMemoryLimits(agentPath string) (overTotal, overSections bool, err error) {
	doc, err := s.LoadMemory(agentPath)
	if err != nil {
		return false, false, err
	}
	if doc == nil {
		return false, false, nil
	}
	return doc.TotalSize() > MaxTotalSize, len(doc.Sections) > MaxSections, nil
}
