package embedprovider

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// StaticDimensions is the vector width produced by StaticProvider.
const StaticDimensions = 256

// staticMaxTokens is a generous upper bound; StaticProvider has no real
// tokenizer and never truncates input, but the interface still needs a
// number for the caller's pre-check.
const staticMaxTokens = 8192

var proseStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "and": {}, "or": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"it": {}, "its": {}, "that": {}, "this": {}, "with": {}, "as": {}, "by": {},
	"for": {}, "be": {}, "been": {}, "has": {}, "have": {}, "had": {},
}

var wordRegex = regexp.MustCompile(`[A-Za-z0-9']+`)

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticProvider produces deterministic vectors from hashed tokens and
// character n-grams, with no model or network dependency. It exists for
// tests, demos, and offline worldbuilding sessions where no embedding model
// is configured.
type StaticProvider struct{}

// NewStaticProvider constructs a StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

func (p *StaticProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalize(generateVector(text)), nil
}

func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *StaticProvider) Dimensions() int { return StaticDimensions }
func (p *StaticProvider) MaxTokens() int  { return staticMaxTokens }

func generateVector(text string) []float32 {
	v := make([]float32, StaticDimensions)

	for _, tok := range tokenize(text) {
		lower := strings.ToLower(tok)
		if _, stop := proseStopWords[lower]; stop {
			continue
		}
		idx := hashToIndex(lower, StaticDimensions)
		v[idx] += tokenWeight
	}

	normalized := strings.ToLower(strings.Join(wordRegex.FindAllString(text, -1), " "))
	for _, gram := range ngrams(normalized, ngramSize) {
		idx := hashToIndex(gram, StaticDimensions)
		v[idx] += ngramWeight
	}

	return v
}

func tokenize(text string) []string {
	var out []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		out = append(out, splitCompound(word)...)
	}
	return out
}

// splitCompound breaks camelCase/snake_case identifiers that leak into
// prose (item names, spell ids) into their component words.
func splitCompound(word string) []string {
	if strings.Contains(word, "_") {
		return strings.Split(word, "_")
	}
	var parts []string
	var cur strings.Builder
	for i, r := range word {
		if i > 0 && r >= 'A' && r <= 'Z' {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
	}
	parts = append(parts, cur.String())
	return parts
}

func ngrams(s string, n int) []string {
	if len(s) < n {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	out := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		out = append(out, s[i:i+n])
	}
	return out
}

func hashToIndex(s string, dims int) int {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int(h.Sum64() % uint64(dims))
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
