package judge

import (
	"sort"
	"strings"
)

// Language pairs a client language name with the judge's numeric id.
type Language struct {
	Name    string `json:"name"`
	JudgeID int    `json:"judge_id"`
}

var languageIDs = map[string]int{
	"python":     71,
	"c":          50,
	"cpp":        54,
	"java":       62,
	"javascript": 63,
	"go":         60,
	"rust":       78,
	"kotlin":     79,
	"swift":      82,
}

var languageAliases = map[string]string{
	"python3": "python",
	"py":      "python",
	"c++":     "cpp",
	"js":      "javascript",
	"golang":  "go",
}

// LanguageID resolves a language name (case-insensitive, common aliases
// accepted) to its judge id.
func LanguageID(name string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[key]; ok {
		key = alias
	}
	id, ok := languageIDs[key]
	return id, ok
}

// CanonicalLanguage returns the canonical name for name, or "" if unknown.
func CanonicalLanguage(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[key]; ok {
		key = alias
	}
	if _, ok := languageIDs[key]; !ok {
		return ""
	}
	return key
}

// Languages lists the supported languages sorted by name.
func Languages() []Language {
	out := make([]Language, 0, len(languageIDs))
	for name, id := range languageIDs {
		out = append(out, Language{Name: name, JudgeID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
