package chunk

import (
	"math"
	"strings"
)

// tokensPerWord is the fixed word-to-token ratio. It trades tokenizer parity
// for speed: embedding-model tokenizers average close to 1.3 tokens per
// English word, which is accurate enough for sizing chunks.
const tokensPerWord = 1.3

// EstimateTokens approximates the token count of text as words times 1.3,
// rounded up.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * tokensPerWord))
}

// wordsForTokens inverts the estimate: the number of whole words that fit a
// token budget.
func wordsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	words := int(float64(tokens) / tokensPerWord)
	if words < 1 {
		words = 1
	}
	return words
}

// leadingWords returns the first words of text that fit the token budget.
func leadingWords(text string, tokens int) string {
	fields := strings.Fields(text)
	n := wordsForTokens(tokens)
	if n >= len(fields) {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:n], " ")
}

// trailingWords returns the last words of text that fit the token budget.
func trailingWords(text string, tokens int) string {
	fields := strings.Fields(text)
	n := wordsForTokens(tokens)
	if n >= len(fields) {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[len(fields)-n:], " ")
}
