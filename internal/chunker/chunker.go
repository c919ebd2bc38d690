// Package chunker splits an object's free text into bounded, ordered pieces
// for embedding: paragraphs first, falling back to sentence splitting for
// any paragraph that alone exceeds the token cap.
package chunker

import (
	"regexp"
	"strings"
)

// TokensPerChar is the same rough token-estimation ratio the rest of the
// corpus uses for text this is not run through a real tokenizer.
const TokensPerChar = 4

// MinChunkTokens is the smallest chunk worth embedding on its own; shorter
// trailing fragments are merged into the previous chunk instead.
const MinChunkTokens = 20

var (
	sentenceBoundary = regexp.MustCompile(`(?s)([.!?])\s+(\p{Lu}|$)`)
	paragraphBreak   = regexp.MustCompile(`\n\s*\n`)
)

// Piece is one ordered, bounded fragment of text ready to become a Chunk.
type Piece struct {
	Ordinal int
	Text    string
}

// EstimateTokens approximates a token count from character length.
func EstimateTokens(text string) int {
	n := len(text) / TokensPerChar
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// Split breaks text into Pieces, none exceeding maxTokens, in paragraph
// order. maxTokens <= 0 disables the cap: the whole trimmed text comes back
// as a single chunk, without splitting on paragraphs.
func Split(text string, maxTokens int) []Piece {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		return []Piece{{Ordinal: 0, Text: text}}
	}

	var pieces []string
	for _, para := range splitParagraphs(text) {
		if EstimateTokens(para) <= maxTokens {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, splitSentencesBounded(para, maxTokens)...)
	}

	pieces = mergeShortTrailers(pieces, maxTokens)

	out := make([]Piece, len(pieces))
	for i, p := range pieces {
		out[i] = Piece{Ordinal: i, Text: p}
	}
	return out
}

func splitParagraphs(text string) []string {
	raw := paragraphBreak.Split(text, -1)
	var paras []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	if len(paras) == 0 {
		return []string{text}
	}
	return paras
}

func splitSentences(text string) []string {
	idx := sentenceBoundary.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return []string{text}
	}
	var sentences []string
	start := 0
	for _, m := range idx {
		end := m[3]   // end of the punctuation group, before the trailing whitespace
		next := m[4]  // start of the next sentence's capital letter (or end of string)
		sentences = append(sentences, strings.TrimSpace(text[start:end]))
		start = next
	}
	if start < len(text) {
		sentences = append(sentences, strings.TrimSpace(text[start:]))
	}
	return sentences
}

// splitSentencesBounded packs sentences into chunks no larger than
// maxTokens; a single sentence longer than maxTokens becomes its own
// oversized chunk rather than being cut mid-word.
func splitSentencesBounded(para string, maxTokens int) []string {
	sentences := splitSentences(para)
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	for _, s := range sentences {
		candidate := s
		if cur.Len() > 0 {
			candidate = cur.String() + " " + s
		}
		if EstimateTokens(candidate) > maxTokens && cur.Len() > 0 {
			flush()
			candidate = s
		}
		cur.Reset()
		cur.WriteString(candidate)
	}
	flush()
	return chunks
}

// mergeShortTrailers folds a chunk below MinChunkTokens into its predecessor
// when the merged text still fits within maxTokens; a short chunk that would
// push its predecessor over the cap stays on its own.
func mergeShortTrailers(pieces []string, maxTokens int) []string {
	if len(pieces) < 2 {
		return pieces
	}
	merged := []string{pieces[0]}
	for _, p := range pieces[1:] {
		last := merged[len(merged)-1]
		if EstimateTokens(p) < MinChunkTokens && EstimateTokens(last+" "+p) <= maxTokens {
			merged[len(merged)-1] = last + " " + p
			continue
		}
		merged = append(merged, p)
	}
	return merged
}
