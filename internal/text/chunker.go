package text

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when there is nothing to chunk.
var ErrEmptyInput = errors.New("chunking: empty or whitespace-only input")

// Chunk is one bounded span of a document's text, sized for embedding.
// Tokens is a word-count estimate, not an exact BPE count. Offset is the
// cumulative character count of chunk text emitted before this chunk.
type Chunk struct {
	Text   string
	Tokens int
	Offset int
}

// SplitSentences breaks text into sentence units on the ". " terminator.
// The final unit keeps whatever trailing punctuation the source had.
func SplitSentences(text string) []string {
	return strings.Split(text, ". ")
}

// EstimateTokens approximates the token count of a sentence by its word count.
func EstimateTokens(sentence string) int {
	return len(strings.Fields(sentence))
}

// Split chunks text into sentence-based chunks of at most maxTokens estimated
// tokens, carrying the trailing overlap sentences of each flushed chunk into
// the next. Overlap is a sentence count. A single sentence whose own estimate
// exceeds maxTokens is still emitted whole. The function is pure and
// deterministic: the same input always yields byte-identical chunks.
func Split(text string, maxTokens, overlap int) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if overlap < 0 {
		overlap = 0
	}

	sentences := SplitSentences(text)

	var chunks []Chunk
	var buf []string
	tokens := 0
	offset := 0

	flush := func() {
		chunkText := strings.Join(buf, ". ") + "."
		chunks = append(chunks, Chunk{
			Text:   chunkText,
			Tokens: tokens,
			Offset: offset,
		})
		offset += len(chunkText)

		// Seed the next buffer with the trailing overlap sentences.
		keep := buf
		if overlap == 0 {
			keep = nil
		} else if len(buf) > overlap {
			keep = buf[len(buf)-overlap:]
		}
		next := make([]string, len(keep))
		copy(next, keep)
		buf = next

		tokens = 0
		for _, s := range buf {
			tokens += EstimateTokens(s)
		}
	}

	for _, sentence := range sentences {
		st := EstimateTokens(sentence)
		if tokens+st > maxTokens && len(buf) > 0 {
			flush()
		}
		buf = append(buf, sentence)
		tokens += st
	}

	if len(buf) > 0 {
		chunkText := strings.Join(buf, ". ") + "."
		chunks = append(chunks, Chunk{Text: chunkText, Tokens: tokens, Offset: offset})
	}

	return chunks, nil
}
