package sentiment

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Classifier maps entry text onto a Sentiment.
type Classifier interface {
	Classify(text string) Sentiment
}

// Analysis is the scoring breakdown behind a classification.
type Analysis struct {
	Score       int
	Comparative float64
	Tokens      []string
	Positive    []string
	Negative    []string
}

// Sentiment returns the classification implied by the score.
func (a Analysis) Sentiment() Sentiment {
	return FromScore(a.Score)
}

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "nor": {}, "neither": {}, "without": {},
	"don't": {}, "dont": {}, "didn't": {}, "didnt": {}, "doesn't": {}, "doesnt": {},
	"isn't": {}, "isnt": {}, "wasn't": {}, "wasnt": {}, "aren't": {}, "arent": {},
	"weren't": {}, "can't": {}, "cant": {}, "cannot": {}, "won't": {}, "wont": {},
	"couldn't": {}, "shouldn't": {}, "wouldn't": {}, "haven't": {}, "hasn't": {}, "hadn't": {},
}

// LexiconClassifier scores text by summing word valences from a Lexicon.
// A word directly preceded by a negator contributes its negated valence.
type LexiconClassifier struct {
	lexicon Lexicon
}

// NewLexiconClassifier builds a classifier over the provided lexicon, or the embedded one when nil.
func NewLexiconClassifier(lexicon Lexicon) *LexiconClassifier {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &LexiconClassifier{lexicon: lexicon}
}

// Classify returns positive for a score above zero, negative below zero, neutral otherwise.
func (c *LexiconClassifier) Classify(text string) Sentiment {
	return c.Analyze(text).Sentiment()
}

// Analyze tokenizes the text and scores every token.
func (c *LexiconClassifier) Analyze(text string) Analysis {
	tokens := Tokenize(text)
	analysis := Analysis{Tokens: tokens}
	for index, token := range tokens {
		score, ok := c.lexicon[token]
		if !ok || score == 0 {
			continue
		}
		if index > 0 {
			if _, negated := negators[tokens[index-1]]; negated {
				score = -score
			}
		}
		analysis.Score += score
		if score > 0 {
			analysis.Positive = append(analysis.Positive, token)
		} else {
			analysis.Negative = append(analysis.Negative, token)
		}
	}
	if len(tokens) > 0 {
		analysis.Comparative = float64(analysis.Score) / float64(len(tokens))
	}
	return analysis
}

// Tokenize case-folds the text, splits on whitespace and strips punctuation
// other than apostrophes and inner hyphens.
func Tokenize(text string) []string {
	folded := cases.Fold().String(strings.ReplaceAll(text, "’", "'"))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
				return r
			}
			return -1
		}, field)
		cleaned = strings.Trim(cleaned, "'-")
		if cleaned == "" {
			continue
		}
		tokens = append(tokens, cleaned)
	}
	return tokens
}
