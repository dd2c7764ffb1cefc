package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/agentvault/runtime/internal/rterr"
)

// resolveUnderScope joins rel onto scope and rejects any path that would
// escape it, per spec.md §6's "SCOPE_VIOLATION on escape" contract.
func resolveUnderScope(scope, rel string) (string, error) {
	if scope == "" {
		return "", rterr.New(rterr.ScopeViolation, "no scope configured for this agent")
	}
	root, err := filepath.Abs(scope)
	if err != nil {
		return "", rterr.Wrap(rterr.ScopeViolation, err)
	}
	joined := filepath.Join(root, rel)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", rterr.Wrap(rterr.ScopeViolation, err)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", rterr.New(rterr.ScopeViolation, "path escapes scope: "+rel)
	}
	return abs, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", rterr.New(rterr.InvalidInput, "missing argument: "+key)
	}
	s, ok := v.(string)
	if !ok {
		return "", rterr.New(rterr.InvalidInput, "argument must be a string: "+key)
	}
	return s, nil
}

func readTool(_ context.Context, args map[string]any, scope string) (any, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	abs, err := resolveUnderScope(scope, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	return string(data), nil
}

func writeTool(_ context.Context, args map[string]any, scope string) (any, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	abs, err := resolveUnderScope(scope, path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	return map[string]any{"path": path, "bytesWritten": len(content)}, nil
}

// editTool replaces oldString with newString in path. It tries an exact
// match first; if none is found it falls back to a fuzzy anchor search
// via levenshtein distance over line-sized windows, then renders the
// change with go-diff's DiffPrettyText: an inline diff with ANSI color
// codes marking insertions and deletions, not a unified diff.
func editTool(_ context.Context, args map[string]any, scope string) (any, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	oldString, err := stringArg(args, "oldString")
	if err != nil {
		return nil, err
	}
	newString, err := stringArg(args, "newString")
	if err != nil {
		return nil, err
	}

	abs, err := resolveUnderScope(scope, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}
	original := string(data)

	updated, matchedFuzzy, err := applyReplacement(original, oldString, newString)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return nil, rterr.Wrap(rterr.TransientIO, err)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, updated, false)
	return map[string]any{
		"path":   path,
		"diff":   dmp.DiffPrettyText(diffs),
		"fuzzy":  matchedFuzzy,
	}, nil
}

// applyReplacement performs an exact string replace; failing that, it
// scans line-sized windows of content for the closest levenshtein match
// to oldString and replaces that window instead.
func applyReplacement(content, oldString, newString string) (result string, fuzzy bool, err error) {
	if strings.Contains(content, oldString) {
		return strings.Replace(content, oldString, newString, 1), false, nil
	}

	lines := strings.Split(content, "\n")
	windowLines := len(strings.Split(oldString, "\n"))
	if windowLines < 1 {
		windowLines = 1
	}

	bestDist := -1
	bestStart, bestEnd := -1, -1
	for start := 0; start+windowLines <= len(lines); start++ {
		window := strings.Join(lines[start:start+windowLines], "\n")
		dist := levenshtein.ComputeDistance(window, oldString)
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			bestStart, bestEnd = start, start+windowLines
		}
	}

	threshold := len(oldString) / 3
	if bestDist == -1 || bestDist > threshold {
		return "", false, rterr.New(rterr.InvalidInput, "no matching anchor found for edit (closest distance "+fmt.Sprint(bestDist)+")")
	}

	replaced := append(append([]string{}, lines[:bestStart]...), strings.Split(newString, "\n")...)
	replaced = append(replaced, lines[bestEnd:]...)
	return strings.Join(replaced, "\n"), true, nil
}

func globTool(_ context.Context, args map[string]any, scope string) (any, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	root, err := resolveUnderScope(scope, ".")
	if err != nil {
		return nil, err
	}

	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, rterr.Wrap(rterr.InvalidInput, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func grepTool(_ context.Context, args map[string]any, scope string) (any, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, rterr.Wrap(rterr.InvalidInput, err)
	}

	root, err := resolveUnderScope(scope, ".")
	if err != nil {
		return nil, err
	}

	globPattern := "**/*"
	if v, ok := args["include"].(string); ok && v != "" {
		globPattern = v
	}

	fsys := os.DirFS(root)
	candidates, err := doublestar.Glob(fsys, globPattern)
	if err != nil {
		return nil, rterr.Wrap(rterr.InvalidInput, err)
	}

	type hit struct {
		Path string `json:"path"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var hits []hit
	for _, rel := range candidates {
		f, err := fsys.Open(rel)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			if re.MatchString(scanner.Text()) {
				hits = append(hits, hit{Path: rel, Line: lineNum, Text: scanner.Text()})
			}
		}
		f.Close()
	}
	return hits, nil
}
