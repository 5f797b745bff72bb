package nlp

import (
	"fmt"
	"regexp"
	"strings"
)

// Lexicon is the set of keyword patterns the engine recognises. Patterns are
// Go regular expressions matched case-insensitively against the raw message.
// Every field can be overridden from the engine YAML file; empty fields keep
// the defaults.
type Lexicon struct {
	Reset        string `yaml:"reset"`
	Contact      string `yaml:"contact"`
	Mail         string `yaml:"mail"`
	Summary      string `yaml:"summary"`
	Analysis     string `yaml:"analysis"`
	Question     string `yaml:"question"`
	FileSpecific string `yaml:"file_specific"`
	Ambiguous    string `yaml:"ambiguous"`
	Continuation string `yaml:"continuation"`
	Unrelated    string `yaml:"unrelated"`
	Anaphora     string `yaml:"anaphora"`
	Comparison   string `yaml:"comparison"`
}

// word wraps alternatives between letter boundaries. RE2's \b only knows
// ASCII word characters, which breaks on accented words such as "où".
func word(alts ...string) string {
	return `(?:^|[^\p{L}\p{N}])(?:` + strings.Join(alts, "|") + `)(?:[^\p{L}\p{N}]|$)`
}

// DefaultLexicon covers French and English phrasing.
var DefaultLexicon = Lexicon{
	Reset: `^\s*(?:reset|clear)\s+(?:the\s+|my\s+)?(?:memory|context|state)\s*[.!]*\s*$`,
	Contact: word(`contact\p{L}*`, `joindre`, `interlocut\p{L}*`, `responsables?`,
		`r[ée]f[ée]rent\p{L}*`, `porteurs?`, `guichets?`,
		`who\s+(?:should|do|can)\s+i\s+(?:call|reach)`),
	Mail: word(`mails?`, `e-?mails?`, `courriels?`, `lettres?`,
		`[ée]cri(?:re|s|vez)\s+(?:un|une|le|la|à)`, `draft\p{L}*`,
		`write\s+(?:an?|the)\s+(?:mail|email|letter)`),
	Summary: word(`r[ée]sum\p{L}*`, `synth[èe]s\p{L}*`, `summar\p{L}*`, `overview`,
		`r[ée]cap\p{L}*`, `en\s+bref`, `aperçu`),
	Analysis: word(`analy\p{L}*`, `[ée]valu\p{L}*`, `risques?`, `risks?`, `compar\p{L}*`,
		`points?\s+(?:forts?|faibles?|cl[ée]s?)`, `incoh[ée]ren\p{L}*`, `anomal\p{L}*`, `audit\p{L}*`),
	Question: `\?\s*$|^\s*(?:qui|que|quoi|quel\p{L}*|quand|où|comment|combien|pourquoi|est[-\s]ce|` +
		`what|who|when|where|how|why|which|is|are|does|do|can)(?:[^\p{L}\p{N}]|$)`,
	FileSpecific: word(`fichiers?`, `documents?`, `pi[èe]ces?\s+jointes?`, `pdf`, `csv`, `txt`,
		`devis`, `rapports?`, `annexes?`, `files?`, `attachments?`, `reports?`),
	Ambiguous: `^\s*(?:next|suivant\p{L}*|autre|encore|pareil|idem|continue[rz]?|go\s+on|same|again|` +
		`ok|okay|d'accord|and|et|alors|hm+|euh+)\s*[?.!…]*\s*$`,
	Continuation: word(`continu\p{L}*`, `again`, `same`, `next`, `more`, `d[ée]tail\p{L}*`,
		`refai\p{L}*`, `refaire`, `encore`, `pareil`, `idem`, `suite`, `approfondi\p{L}*`),
	Unrelated: `^\s*(?:bonjour|salut|hello|hi|hey|coucou|merci\p{L}*|thanks?|thank\s+you|au\s+revoir|bye)(?:[^\p{L}\p{N}]|$)|` +
		word(`autre\s+sujet`, `chang\p{L}*\s+de\s+sujet`, `new\s+topic`, `something\s+else`, `rien\s+à\s+voir`),
	Anaphora: word(`(?:this|that|the\s+above|the\s+previous|the\s+same)\s+(?:document|file|report)`,
		`the\s+(?:document|file)\s+above`, `(?:ce|cet)\s+(?:document|fichier|rapport)`,
		`(?:le|la)\s+(?:document|fichier|pi[èe]ce)\s+(?:ci-dessus|pr[ée]c[ée]dente?)`,
		`celui[-\s](?:ci|là)`, `celle[-\s](?:ci|là)`, `ce\s+dernier`),
	Comparison: word(`compar\p{L}*`, `diff[ée]ren\p{L}*`, `versus`, `vs`, `entre\s+les`),
}

// Patterns is a compiled Lexicon.
type Patterns struct {
	Reset        *regexp.Regexp
	Contact      *regexp.Regexp
	Mail         *regexp.Regexp
	Summary      *regexp.Regexp
	Analysis     *regexp.Regexp
	Question     *regexp.Regexp
	FileSpecific *regexp.Regexp
	Ambiguous    *regexp.Regexp
	Continuation *regexp.Regexp
	Unrelated    *regexp.Regexp
	Anaphora     *regexp.Regexp
	Comparison   *regexp.Regexp
}

// Merge returns l with every empty field taken from base.
func (l Lexicon) Merge(base Lexicon) Lexicon {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Lexicon{
		Reset:        pick(l.Reset, base.Reset),
		Contact:      pick(l.Contact, base.Contact),
		Mail:         pick(l.Mail, base.Mail),
		Summary:      pick(l.Summary, base.Summary),
		Analysis:     pick(l.Analysis, base.Analysis),
		Question:     pick(l.Question, base.Question),
		FileSpecific: pick(l.FileSpecific, base.FileSpecific),
		Ambiguous:    pick(l.Ambiguous, base.Ambiguous),
		Continuation: pick(l.Continuation, base.Continuation),
		Unrelated:    pick(l.Unrelated, base.Unrelated),
		Anaphora:     pick(l.Anaphora, base.Anaphora),
		Comparison:   pick(l.Comparison, base.Comparison),
	}
}

// Compile compiles every pattern with the case-insensitive flag. Empty
// fields fall back to DefaultLexicon.
func (l Lexicon) Compile() (*Patterns, error) {
	l = l.Merge(DefaultLexicon)
	var p Patterns
	for _, f := range []struct {
		name string
		expr string
		dst  **regexp.Regexp
	}{
		{"reset", l.Reset, &p.Reset},
		{"contact", l.Contact, &p.Contact},
		{"mail", l.Mail, &p.Mail},
		{"summary", l.Summary, &p.Summary},
		{"analysis", l.Analysis, &p.Analysis},
		{"question", l.Question, &p.Question},
		{"file_specific", l.FileSpecific, &p.FileSpecific},
		{"ambiguous", l.Ambiguous, &p.Ambiguous},
		{"continuation", l.Continuation, &p.Continuation},
		{"unrelated", l.Unrelated, &p.Unrelated},
		{"anaphora", l.Anaphora, &p.Anaphora},
		{"comparison", l.Comparison, &p.Comparison},
	} {
		re, err := regexp.Compile(`(?i)` + f.expr)
		if err != nil {
			return nil, fmt.Errorf("nlp: compile %s pattern: %w", f.name, err)
		}
		*f.dst = re
	}
	return &p, nil
}

// MustCompileDefault compiles DefaultLexicon and panics on error.
func MustCompileDefault() *Patterns {
	p, err := DefaultLexicon.Compile()
	if err != nil {
		panic(err)
	}
	return p
}
