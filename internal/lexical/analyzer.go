// Package lexical derives the term representation stored in the full-text index
// and parses web-search style queries against it.
//
// The same Analyzer runs on write (chunk text and description) and on read (query
// terms), so both sides of a match always agree on tokenisation and stop words.
package lexical

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultStopWords is a short English stop list. Queries made only of these
// words analyze to nothing and return no results.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in",
	"into", "is", "it", "no", "not", "of", "on", "or", "such", "that", "the",
	"their", "then", "there", "these", "they", "this", "to", "was", "will", "with",
}

// Config controls analysis.
type Config struct {
	// StopWords are dropped from both indexed text and queries.
	StopWords []string `yaml:"stop_words" json:"stop_words"`

	// MinTokenLength drops shorter tokens (in runes).
	MinTokenLength int `yaml:"min_token_length" json:"min_token_length"`
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		StopWords:      DefaultStopWords,
		MinTokenLength: 1,
	}
}

// Analyzer turns text into index terms. It is safe for concurrent use.
type Analyzer struct {
	stopWords map[string]struct{}
	minLen    int
}

// NewAnalyzer creates an analyzer from cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	minLen := cfg.MinTokenLength
	if minLen < 1 {
		minLen = 1
	}
	return &Analyzer{
		stopWords: BuildStopWordMap(cfg.StopWords),
		minLen:    minLen,
	}
}

var defaultAnalyzer = NewAnalyzer(DefaultConfig())

// Analyze derives the representation of text with the default analyzer.
func Analyze(text string) Representation {
	return defaultAnalyzer.Analyze(text)
}

// Analyze derives the index representation of text. It is a pure function of
// text and the analyzer configuration.
func (a *Analyzer) Analyze(text string) Representation {
	return Representation{Terms: a.Terms(text)}
}

// Terms returns the lower-cased, stop-word-filtered terms of text in order.
func (a *Analyzer) Terms(text string) []string {
	words := Tokenize(text)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < a.minLen {
			continue
		}
		if a.IsStopWord(w) {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// IsStopWord reports whether term is in the analyzer's stop list.
func (a *Analyzer) IsStopWord(term string) bool {
	_, ok := a.stopWords[strings.ToLower(term)]
	return ok
}

// Tokenize splits text into lower-cased runs of letters and digits.
// Everything else (whitespace, punctuation, symbols) separates tokens.
func Tokenize(text string) []string {
	// Return empty slice, not nil
	tokens := []string{}

	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// BuildStopWordMap converts a slice of stop words to a map for lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
