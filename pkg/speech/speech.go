// Package speech provides pure normalization and classification helpers
// for recognized utterances.
package speech

import (
	"regexp"
	"strings"

	"github.com/formversation/voiceform/pkg/flow"
)

// Verdict is the tri-state result of yes/no classification. Callers must
// re-prompt on Unclear rather than treating it as either answer.
type Verdict int

const (
	Unclear Verdict = iota
	Affirmed
	Denied
)

var affirmatives = map[string]bool{
	"yes":         true,
	"yeah":        true,
	"yep":         true,
	"sure":        true,
	"correct":     true,
	"ok":          true,
	"okay":        true,
	"affirmative": true,
	"i agree":     true,
}

var negatives = map[string]bool{
	"no":         true,
	"nope":       true,
	"nah":        true,
	"negative":   true,
	"not really": true,
	"i don't":    true,
	"i dont":     true,
}

var (
	spokenAt  = regexp.MustCompile(`\s+at\s+`)
	spokenDot = regexp.MustCompile(`\s+dot\s+`)
	spaces    = regexp.MustCompile(`\s+`)
	emailJunk = regexp.MustCompile(`[,;:]`)

	// Shape check only: one @, a dot in the domain, no whitespace.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NormalizeEmail converts a spoken email address to its written form:
// "john at example dot com" becomes "john@example.com".
func NormalizeEmail(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = spokenAt.ReplaceAllString(s, "@")
	s = spokenDot.ReplaceAllString(s, ".")
	s = spaces.ReplaceAllString(s, "")
	s = emailJunk.ReplaceAllString(s, "")
	return s
}

// IsEmail reports whether s has local@domain.tld shape.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ClassifyYesNo maps an utterance onto Affirmed, Denied, or Unclear.
func ClassifyYesNo(utterance string) Verdict {
	s := strings.ToLower(strings.TrimSpace(utterance))
	if affirmatives[s] {
		return Affirmed
	}
	if negatives[s] {
		return Denied
	}
	return Unclear
}

// MatchSynonym maps free speech onto an option id by case-insensitive
// substring containment against each option's synonyms and label. Options
// are tried in declaration order and the first match wins.
func MatchSynonym(utterance string, options []flow.OptionDef) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(utterance))
	if s == "" {
		return "", false
	}
	for _, opt := range options {
		for _, syn := range opt.Synonyms {
			if syn != "" && strings.Contains(s, strings.ToLower(syn)) {
				return opt.ID, true
			}
		}
		if opt.Label != "" && strings.Contains(s, strings.ToLower(opt.Label)) {
			return opt.ID, true
		}
	}
	return "", false
}

// MatchesPattern reports whether the utterance matches the given regex.
// A pattern that fails to compile passes everything: malformed step
// configuration must never lock a respondent out of a form. This is a
// deliberate lenient-on-misconfiguration policy, not an accident.
func MatchesPattern(utterance, pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return true
	}
	return re.MatchString(utterance)
}
