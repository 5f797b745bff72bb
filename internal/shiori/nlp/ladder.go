package nlp

import "regexp"

// RequestType is the coarse category of a user request.
type RequestType string

const (
	RequestMail         RequestType = "mail"
	RequestContact      RequestType = "contact"
	RequestSummary      RequestType = "summary"
	RequestAnalysis     RequestType = "analysis"
	RequestQuestion     RequestType = "question"
	RequestFileSpecific RequestType = "file_specific"
	RequestGeneral      RequestType = "general"
)

// rule is one rung of the ladder.
type rule struct {
	typ RequestType
	re  *regexp.Regexp
}

// Ladder classifies messages by evaluating keyword rules in a fixed order.
// The first matching rule wins, so order carries meaning: a mail-drafting
// request that names a contact is a mail request, not a contact lookup.
type Ladder struct {
	p     *Patterns
	rules []rule
}

// NewLadder builds the ladder mail > contact > summary > analysis >
// question > file-specific, falling back to general.
func NewLadder(p *Patterns) *Ladder {
	return &Ladder{
		p: p,
		rules: []rule{
			{RequestMail, p.Mail},
			{RequestContact, p.Contact},
			{RequestSummary, p.Summary},
			{RequestAnalysis, p.Analysis},
			{RequestQuestion, p.Question},
			{RequestFileSpecific, p.FileSpecific},
		},
	}
}

// Patterns returns the compiled lexicon the ladder was built from.
func (l *Ladder) Patterns() *Patterns { return l.p }

// Classify returns the first matching request type for text.
func (l *Ladder) Classify(text string) RequestType {
	for _, r := range l.rules {
		if r.re.MatchString(text) {
			return r.typ
		}
	}
	return RequestGeneral
}

// ClassifyTopic is Classify restricted to the rungs that describe what the
// user wants done with content: summary, analysis, question, file-specific,
// general. It picks the wording of the "please specify a file" prompts.
func (l *Ladder) ClassifyTopic(text string) RequestType {
	for _, r := range l.rules {
		if r.typ == RequestMail || r.typ == RequestContact {
			continue
		}
		if r.re.MatchString(text) {
			return r.typ
		}
	}
	return RequestGeneral
}

// IsReset reports whether text is exactly a reset command.
func (l *Ladder) IsReset(text string) bool { return l.p.Reset.MatchString(text) }

// IsContactLookup reports whether message or intent asks for a contact and
// the message is not a mail-drafting request.
func (l *Ladder) IsContactLookup(message, intent string) bool {
	if l.p.Mail.MatchString(message) || (intent != "" && l.p.Mail.MatchString(intent)) {
		return false
	}
	return l.p.Contact.MatchString(message) || (intent != "" && l.p.Contact.MatchString(intent))
}

// IsAmbiguous reports whether message or intent is a bare continuation or
// filler with nothing to act on.
func (l *Ladder) IsAmbiguous(message, intent string) bool {
	return l.p.Ambiguous.MatchString(message) || (intent != "" && l.p.Ambiguous.MatchString(intent))
}

// ImpliesContinuation reports whether text or intent carries an anaphoric
// cue or a continuation keyword.
func (l *Ladder) ImpliesContinuation(text, intent string) bool {
	if l.p.Anaphora.MatchString(text) || l.p.Continuation.MatchString(text) {
		return true
	}
	return intent != "" && l.p.Continuation.MatchString(intent)
}

// IsUnrelated reports whether message or intent is small talk or a topic
// switch.
func (l *Ladder) IsUnrelated(message, intent string) bool {
	return l.p.Unrelated.MatchString(message) || (intent != "" && l.p.Unrelated.MatchString(intent))
}

// IsFileSpecific reports whether text talks about a document.
func (l *Ladder) IsFileSpecific(text string) bool { return l.p.FileSpecific.MatchString(text) }

// IsComparison reports whether text asks to compare things.
func (l *Ladder) IsComparison(text string) bool { return l.p.Comparison.MatchString(text) }
