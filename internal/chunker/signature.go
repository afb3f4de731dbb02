package chunker

import (
	"regexp"
	"strings"
)

// Definition-keyword anchors per language family
var (
	goAnchor      = regexp.MustCompile(`^\s*(func|type)\b`)
	pythonAnchor  = regexp.MustCompile(`^\s*(async\s+)?(def|class)\s+\w+`)
	scriptAnchor  = regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(declare\s+)?(abstract\s+)?(async\s+)?(function\*?|class|interface|type|enum)\b`)
	rustAnchor    = regexp.MustCompile(`^\s*(pub(\([\w:]+\))?\s+)?(async\s+)?(unsafe\s+)?(fn|struct|enum|trait|impl|type)\b`)
	cFamilyAnchor = regexp.MustCompile(`^\s*((public|private|protected|internal|static|final|abstract|sealed|open|override|virtual|partial|data|export)\s+)*(class|interface|struct|enum|record|object|fun|func|function|trait)\b`)

	// const handler = async (req) => {   /   render() {
	braceArrow = regexp.MustCompile(`(=>|\)\s*(:\s*[\w<>\[\]|.,\s]+)?\s*\{\s*$)`)

	// public static List<String> parse(String input)
	modifierTypeName = regexp.MustCompile(`^\s*((public|private|protected|internal|static|final|abstract|synchronized|override|virtual|async|inline|const|extern)\s+)*[\w<>\[\],.?*&:]+\s+[\w~]+\s*\(`)
)

var familyAnchors = map[string]*regexp.Regexp{
	"go":         goAnchor,
	"python":     pythonAnchor,
	"javascript": scriptAnchor,
	"typescript": scriptAnchor,
	"jsx":        scriptAnchor,
	"tsx":        scriptAnchor,
	"rust":       rustAnchor,
	"java":       cFamilyAnchor,
	"kotlin":     cFamilyAnchor,
	"scala":      cFamilyAnchor,
	"csharp":     cFamilyAnchor,
	"c#":         cFamilyAnchor,
	"c":          cFamilyAnchor,
	"cpp":        cFamilyAnchor,
	"c++":        cFamilyAnchor,
	"swift":      cFamilyAnchor,
	"php":        cFamilyAnchor,
}

var allAnchors = []*regexp.Regexp{goAnchor, pythonAnchor, scriptAnchor, rustAnchor, cFamilyAnchor}

// ExtractSignature finds a best-effort signature line within the first few
// lines of source. It tries a definition-keyword anchor for the language
// family, then a brace/arrow heuristic, then a modifier+type+name+paren
// heuristic, and finally falls back to the first non-blank line.
func ExtractSignature(source, language string) string {
	lines := leadingLines(source, SignatureScanLines)
	if len(lines) == 0 {
		return ""
	}

	anchors := allAnchors
	if a, ok := familyAnchors[strings.ToLower(language)]; ok {
		anchors = []*regexp.Regexp{a}
	}

	for _, line := range lines {
		if isCommentLine(line) {
			continue
		}
		for _, a := range anchors {
			if a.MatchString(line) {
				return cleanSignature(line)
			}
		}
	}

	for _, line := range lines {
		if !isCommentLine(line) && braceArrow.MatchString(line) {
			return cleanSignature(line)
		}
	}

	for _, line := range lines {
		if !isCommentLine(line) && modifierTypeName.MatchString(line) {
			return cleanSignature(line)
		}
	}

	return cleanSignature(lines[0])
}

// leadingLines returns up to n non-blank lines from the start of source
func leadingLines(source string, n int) []string {
	var out []string
	for _, l := range strings.Split(source, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") ||
		strings.HasPrefix(t, "/*") || strings.HasPrefix(t, "*") ||
		strings.HasPrefix(t, "@") || strings.HasPrefix(t, `"""`)
}

func cleanSignature(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimSuffix(s, "{")
	return strings.TrimSpace(s)
}
