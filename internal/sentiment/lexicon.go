package sentiment

import (
	"bufio"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed afinn.tsv
var afinnSource string

// Lexicon maps lower-case words onto integer valence scores.
type Lexicon map[string]int

// DefaultLexicon returns the embedded AFINN-165 word list. Multi-word phrases
// are omitted since scoring is per token.
func DefaultLexicon() Lexicon {
	return defaultLexicon
}

var defaultLexicon = mustParseLexicon(afinnSource)

// ParseLexicon reads tab separated "word<TAB>score" lines.
func ParseLexicon(source string) (Lexicon, error) {
	lexicon := make(Lexicon)
	scanner := bufio.NewScanner(strings.NewReader(source))
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, rawScore, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("sentiment: lexicon line %d: missing tab separator", lineNumber)
		}
		score, err := strconv.Atoi(strings.TrimSpace(rawScore))
		if err != nil {
			return nil, fmt.Errorf("sentiment: lexicon line %d: %w", lineNumber, err)
		}
		lexicon[strings.ToLower(strings.TrimSpace(word))] = score
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lexicon, nil
}

func mustParseLexicon(source string) Lexicon {
	lexicon, err := ParseLexicon(source)
	if err != nil {
		panic(err)
	}
	return lexicon
}
