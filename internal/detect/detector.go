package detect

import (
	"regexp"
	"strings"

	"tellerdesk/internal/domain"
)

// Keyword is one weighted phrase associated with a service.
type Keyword struct {
	Phrase string
	Weight float64
}

// ServiceRule describes how one candidate service is recognized and when
// its detection may be committed.
type ServiceRule struct {
	Key           string
	ServiceID     string
	Label         string
	LockThreshold float64
	Keywords      []Keyword
}

type correction struct {
	from string
	to   string
}

// Detector scores transcript text against a fixed, ordered rule set.
// Detection is pure: identical input always yields identical output.
type Detector struct {
	rules       []ServiceRule
	corrections []correction
}

// NewDetector builds a detector over the given rules. Rule order matters:
// when two services score equally, the earlier rule wins.
func NewDetector(rules []ServiceRule) *Detector {
	return &Detector{rules: rules, corrections: defaultCorrections()}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]+`)

// Normalize lowercases, strips punctuation and collapses whitespace, then
// rewrites known ASR mis-transcriptions into their canonical form.
func (d *Detector) Normalize(text string) string {
	text = strings.ToLower(text)
	text = nonAlnum.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	for _, c := range d.corrections {
		text = replacePhrase(text, c.from, c.to)
	}
	return text
}

// Detect scores every candidate service over the given text and returns the
// best one. A zero confidence means no service matched.
func (d *Detector) Detect(text string) domain.Detection {
	if strings.TrimSpace(text) == "" {
		return domain.Detection{}
	}

	tokens := strings.Fields(d.Normalize(text))

	var best domain.Detection
	for _, rule := range d.rules {
		score := 0.0
		var matched []string
		for _, kw := range rule.Keywords {
			if containsPhrase(tokens, kw.Phrase) {
				score += kw.Weight
				matched = append(matched, kw.Phrase)
			}
		}
		if score <= 0 {
			continue
		}
		if score > 1 {
			score = 1
		}
		// Strict comparison keeps declaration order as the tie-break.
		if score > best.Confidence {
			best = domain.Detection{
				ServiceKey: rule.Key,
				ServiceID:  rule.ServiceID,
				Label:      rule.Label,
				Confidence: score,
				Matched:    matched,
			}
		}
	}
	return best
}

// ShouldLock reports whether the detection is confident enough to commit
// the session to serviceKey. Unknown keys never lock.
func (d *Detector) ShouldLock(serviceKey string, confidence float64) bool {
	rule, ok := d.RuleFor(serviceKey)
	if !ok {
		return false
	}
	return confidence >= rule.LockThreshold
}

// RuleFor returns the rule registered under serviceKey.
func (d *Detector) RuleFor(serviceKey string) (ServiceRule, bool) {
	for _, rule := range d.rules {
		if rule.Key == serviceKey {
			return rule, true
		}
	}
	return ServiceRule{}, false
}

// containsPhrase reports whether the phrase's tokens appear as a contiguous
// run in tokens. Matching on token boundaries avoids false positives from
// word fragments ("tabungan" must not match inside "ketabunganan").
func containsPhrase(tokens []string, phrase string) bool {
	want := strings.Fields(phrase)
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(want) <= len(tokens); i++ {
		for j, w := range want {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

// replacePhrase substitutes whole-phrase occurrences within already
// normalized (single-spaced) text.
func replacePhrase(text, from, to string) string {
	if text == from {
		return to
	}
	text = strings.ReplaceAll(" "+text+" ", " "+from+" ", " "+to+" ")
	return strings.TrimSpace(text)
}
