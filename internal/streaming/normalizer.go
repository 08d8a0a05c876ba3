package streaming

import (
	"regexp"
	"strings"

	"github.com/aurelia-labs/aurelia/internal/config"
)

// emotionTagPattern matches a bracketed emotion marker such as "[happy]" or
// "[sad]". Only the first occurrence in a sentence is extracted.
var emotionTagPattern = regexp.MustCompile(`\[([a-zA-Z_]+)\]`)

// whitespaceRunPattern matches one or more whitespace characters, collapsed
// to a single space by [TextNormalizer.Process].
var whitespaceRunPattern = regexp.MustCompile(`\s+`)

// compiledRule is a [config.NormalizationRule] with its pattern pre-compiled.
type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// TextNormalizer applies an ordered, data-driven rule set to a completed
// sentence, extracts an emotion tag, and collapses whitespace. It is
// stateless and safe for concurrent use — rules are fixed at construction.
type TextNormalizer struct {
	rules []compiledRule
}

// NewTextNormalizer compiles rules into a [TextNormalizer]. Invalid patterns
// are skipped (callers are expected to have already validated the rule set
// via [config.Validate] at load time); at runtime a bad pattern degrades to
// "rule not applied" rather than a panic.
func NewTextNormalizer(rules []config.NormalizationRule) *TextNormalizer {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledRule{pattern: re, replacement: r.Replacement})
	}
	return &TextNormalizer{rules: compiled}
}

// NormalizedText is the result of [TextNormalizer.Process]: the transformed
// sentence text and its extracted emotion tag, if any.
type NormalizedText struct {
	Text    string
	Emotion string
}

// Process applies the normalizer's rule set in order, extracts the first
// emotion tag, collapses whitespace, and trims the result. ok is false when
// the resulting text is empty after trimming — the caller must skip the
// emission in that case.
func (n *TextNormalizer) Process(sentence string) (result NormalizedText, ok bool) {
	text := sentence
	for _, rule := range n.rules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}

	emotion := ""
	if loc := emotionTagPattern.FindStringSubmatchIndex(text); loc != nil {
		emotion = text[loc[2]:loc[3]]
		text = text[:loc[0]] + text[loc[1]:]
	}

	text = whitespaceRunPattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if text == "" {
		return NormalizedText{}, false
	}
	return NormalizedText{Text: text, Emotion: emotion}, true
}
