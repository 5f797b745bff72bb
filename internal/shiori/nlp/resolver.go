package nlp

import (
	"regexp"

	"github.com/bdobrica/Shiori/internal/shiori/memory"
)

var (
	fileAnaphora = regexp.MustCompile(`(?i)\b(?:this|that)\s+(?:document|file|report)\b|` +
		`\bthe\s+(?:above|previous)\s+(?:document|file)\b|\bthe\s+(?:document|file)\s+above\b|` +
		`\b(?:ce|cet)\s+(?:document|fichier|rapport)\b|` +
		`\b(?:le|la)\s+(?:document|fichier|pièce)\s+(?:ci-dessus|précédente?)|` +
		`\bcelui[-\s](?:ci|là)|\bcelle[-\s](?:ci|là)|\bce\s+dernier\b`)

	functionAnaphora = regexp.MustCompile(`(?i)\b(?:this|that|the\s+same)\s+function\b|\bcette\s+fonction\b|\bla\s+(?:même\s+)?fonction\s+précédente`)
	variableAnaphora = regexp.MustCompile(`(?i)\b(?:this|that|the\s+same)\s+variable\b|\bcette\s+variable\b|\bla\s+(?:même\s+)?variable\s+précédente`)
)

// ResolveReferences rewrites anaphoric phrases in msg using m. Document
// phrases become the current file's name; "that function" and "that
// variable" become the latest remembered value of that entity type. Phrases
// without an antecedent are left untouched.
func ResolveReferences(msg string, m *memory.SessionMemory) string {
	if m == nil {
		return msg
	}
	if m.CurrentFile != nil && m.CurrentFile.Name != "" {
		msg = fileAnaphora.ReplaceAllLiteralString(msg, m.CurrentFile.Name)
	}
	if v, ok := m.LatestEntity(memory.EntityFunction); ok {
		msg = functionAnaphora.ReplaceAllLiteralString(msg, v)
	}
	if v, ok := m.LatestEntity(memory.EntityVariable); ok {
		msg = variableAnaphora.ReplaceAllLiteralString(msg, v)
	}
	return msg
}
