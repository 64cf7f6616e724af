package source

import (
	"regexp"
	"strings"
)

// Function is one extracted C function.
type Function struct {
	Name   string
	Source string
}

// headerPattern matches `<return-type tokens> <identifier>(<params>) {`.
var headerPattern = regexp.MustCompile(`^\s*([a-zA-Z_][\w\s\*]+)\s+(\w+)\s*\([^)]*\)\s*\{`)

// ParseFunctions extracts every top-level function of text in order of first
// appearance. A name seen twice keeps its first position and its last body.
// Functions whose braces never balance are dropped.
func ParseFunctions(text string) []Function {
	lines := splitLines(text)

	var out []Function
	index := make(map[string]int)

	for i := 0; i < len(lines); i++ {
		m := headerPattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		body, end, ok := captureBlock(lines, i)
		if !ok {
			continue
		}
		name := m[2]
		if at, seen := index[name]; seen {
			out[at].Source = body
		} else {
			index[name] = len(out)
			out = append(out, Function{Name: name, Source: body})
		}
		i = end
	}
	return out
}

// ParseFunction returns the first function called name, matched anywhere on
// a line as `name(<params>) {`.
func ParseFunction(text, name string) (string, bool) {
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\s*\([^)]*\)\s*\{`)
	if err != nil {
		return "", false
	}
	lines := splitLines(text)
	for i, line := range lines {
		if !pattern.MatchString(line) {
			continue
		}
		body, _, ok := captureBlock(lines, i)
		return body, ok
	}
	return "", false
}

// captureBlock accumulates lines from start until the brace counter returns
// to zero after at least one opening brace. It returns the trimmed block and
// the index of its last line.
func captureBlock(lines []string, start int) (string, int, bool) {
	depth := 0
	opened := false
	for j := start; j < len(lines); j++ {
		opens := strings.Count(lines[j], "{")
		depth += opens - strings.Count(lines[j], "}")
		if opens > 0 {
			opened = true
		}
		if depth == 0 && opened {
			return strings.TrimSpace(strings.Join(lines[start:j+1], "\n")), j, true
		}
	}
	return "", 0, false
}

// splitLines splits on \n, \r\n and \r without producing a trailing empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
