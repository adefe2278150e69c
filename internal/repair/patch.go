package repair

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// fileRefRe matches the first "path/to/file.ext:line" or
// "path/to/file.ext:line:col" reference to a known code-file extension
// anywhere in a combined stdout/stderr blob.
var fileRefRe = regexp.MustCompile(
	`([\w./-]+\.(?:go|py|js|jsx|ts|tsx|java|c|cc|cpp|h|hpp|rb|rs|sh|yaml|yml|json|toml|cfg))[:](\d+)(?:[:](\d+))?`)

// FileRef is a resolved file:line(:col)? reference inside a workspace.
type FileRef struct {
	Path string // relative to repoRoot
	Line int
	Col  int
}

// extractFileRef finds the first code-file reference in text and confirms
// it resolves to a real file inside repoRoot, rejecting anything that would
// escape the root.
func extractFileRef(text, repoRoot string) (FileRef, bool) {
	m := fileRefRe.FindStringSubmatch(text)
	if m == nil {
		return FileRef{}, false
	}
	rel := m[1]
	line, err := strconv.Atoi(m[2])
	if err != nil || line < 1 {
		return FileRef{}, false
	}
	col := 0
	if m[3] != "" {
		col, _ = strconv.Atoi(m[3])
	}
	abs := filepath.Join(repoRoot, rel)
	cleanRoot := filepath.Clean(repoRoot)
	cleanAbs := filepath.Clean(abs)
	if !strings.HasPrefix(cleanAbs, cleanRoot+string(filepath.Separator)) && cleanAbs != cleanRoot {
		return FileRef{}, false
	}
	if _, err := os.Stat(cleanAbs); err != nil {
		return FileRef{}, false
	}
	return FileRef{Path: rel, Line: line, Col: col}, true
}

// readSnippet returns the lines in [line-radius, line+radius] (1-indexed,
// clamped to the file's bounds) joined with their line numbers.
func readSnippet(repoRoot string, ref FileRef, radius int) (string, error) {
	f, err := os.Open(filepath.Join(repoRoot, ref.Path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", err
	}

	lo := ref.Line - radius
	if lo < 1 {
		lo = 1
	}
	hi := ref.Line + radius
	if hi > len(lines) {
		hi = len(lines)
	}
	var b strings.Builder
	for i := lo; i <= hi; i++ {
		marker := "   "
		if i == ref.Line {
			marker = ">> "
		}
		fmt.Fprintf(&b, "%s%5d  %s\n", marker, i, lines[i-1])
	}
	return b.String(), nil
}

var patchBlockRe = regexp.MustCompile(`(?s)\*\*\* Begin Patch\r?\n(.*?)\r?\n\*\*\* End Patch`)

// extractPatchBlock pulls the text between the begin/end markers, or
// reports ok=false if the model refused / omitted them.
func extractPatchBlock(raw string) (string, bool) {
	m := patchBlockRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// unifiedHunk is one "@@ ... @@" block of a single-file unified diff.
type unifiedHunk struct {
	oldStart int
	lines    []diffLine
}

type diffLine struct {
	kind byte // ' ', '+', '-'
	text string
}

// applyPatch parses a minimal single- or multi-file unified diff (one
// "--- a/<path>" / "+++ b/<path>" pair per file, any number of "@@" hunks)
// and rewrites each referenced file in place, confined to repoRoot. It
// returns the relative paths it touched.
func applyPatch(repoRoot, patchText string) ([]string, error) {
	files, err := splitPatchByFile(patchText)
	if err != nil {
		return nil, err
	}
	var touched []string
	for path, hunks := range files {
		clean := filepath.Clean(path)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return touched, fmt.Errorf("patch path %q escapes the repo root", path)
		}
		abs := filepath.Join(repoRoot, clean)
		if !strings.HasPrefix(filepath.Clean(abs), filepath.Clean(repoRoot)) {
			return touched, fmt.Errorf("patch path %q escapes the repo root", path)
		}
		if err := applyHunksToFile(abs, hunks); err != nil {
			return touched, fmt.Errorf("apply patch to %s: %w", path, err)
		}
		touched = append(touched, clean)
	}
	return touched, nil
}

func splitPatchByFile(patchText string) (map[string][]unifiedHunk, error) {
	lines := strings.Split(strings.TrimRight(patchText, "\n"), "\n")
	files := map[string][]unifiedHunk{}
	var curPath string
	var curHunk *unifiedHunk

	flush := func() {
		if curPath != "" && curHunk != nil {
			files[curPath] = append(files[curPath], *curHunk)
			curHunk = nil
		}
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "):
			continue
		case strings.HasPrefix(line, "+++ "):
			flush()
			curPath = stripDiffPrefix(strings.TrimPrefix(line, "+++ "))
		case strings.HasPrefix(line, "@@"):
			flush()
			start, err := parseHunkOldStart(line)
			if err != nil {
				return nil, err
			}
			curHunk = &unifiedHunk{oldStart: start}
		case curHunk != nil && len(line) > 0:
			curHunk.lines = append(curHunk.lines, diffLine{kind: line[0], text: line[1:]})
		case curHunk != nil && line == "":
			curHunk.lines = append(curHunk.lines, diffLine{kind: ' ', text: ""})
		}
	}
	flush()
	return files, nil
}

func stripDiffPrefix(path string) string {
	path = strings.TrimSpace(path)
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimPrefix(path, prefix)
		}
	}
	return path
}

var hunkHeaderRe = regexp.MustCompile(`@@ -(\d+)`)

func parseHunkOldStart(header string) (int, error) {
	m := hunkHeaderRe.FindStringSubmatch(header)
	if m == nil {
		return 0, fmt.Errorf("malformed hunk header %q", header)
	}
	return strconv.Atoi(m[1])
}

func applyHunksToFile(path string, hunks []unifiedHunk) error {
	orig, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	origLines := strings.Split(string(orig), "\n")

	var out []string
	cursor := 0 // 0-indexed position in origLines already copied
	for _, h := range hunks {
		start := h.oldStart - 1
		if start < cursor || start > len(origLines) {
			return fmt.Errorf("hunk start %d out of order or out of range", h.oldStart)
		}
		out = append(out, origLines[cursor:start]...)
		cursor = start
		for _, dl := range h.lines {
			switch dl.kind {
			case ' ':
				if cursor >= len(origLines) || origLines[cursor] != dl.text {
					return fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				out = append(out, dl.text)
				cursor++
			case '-':
				if cursor >= len(origLines) || origLines[cursor] != dl.text {
					return fmt.Errorf("delete mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				out = append(out, dl.text)
			}
		}
	}
	out = append(out, origLines[cursor:]...)
	return os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o644)
}
