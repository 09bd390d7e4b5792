package extraction

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kljensen/snowball/english"

	"github.com/aeodev/aiscrape/pkg/models"
)

// CosineSimilarityStrategy scores content relevance via TF-IDF cosine
// similarity against the task description, then pattern-extracts entities
// from the content (or its most relevant sentences) when the score clears
// threshold.
type CosineSimilarityStrategy struct {
	Threshold   float64
	MaxEntities int
}

// NewCosineSimilarityStrategy constructs a strategy with spec.md defaults
// (threshold 0.3, max_entities 50) when the zero value is passed.
func NewCosineSimilarityStrategy(threshold float64, maxEntities int) *CosineSimilarityStrategy {
	if threshold <= 0 {
		threshold = 0.3
	}
	if maxEntities <= 0 {
		maxEntities = 50
	}
	return &CosineSimilarityStrategy{Threshold: threshold, MaxEntities: maxEntities}
}

func (c *CosineSimilarityStrategy) Name() string          { return "cosine-similarity" }
func (c *CosineSimilarityStrategy) Type() StrategyType     { return StrategyCosine }
func (c *CosineSimilarityStrategy) IsAvailable(_ context.Context) bool { return true }

func (c *CosineSimilarityStrategy) Extract(_ context.Context, ectx Context) Result {
	start := time.Now()
	content := ectx.Text
	if content == "" {
		content = ectx.HTML
	}

	similarity := cosineSimilarity(tokenize(content), tokenize(ectx.TaskDescription))

	var entities []models.Entity
	if similarity >= c.Threshold {
		entities = patternExtract(content)
	} else {
		entities = extractFromTopSentences(content, ectx.TaskDescription, c.Threshold)
	}

	entities = DedupEntities(entities)
	if len(entities) > c.MaxEntities {
		entities = entities[:c.MaxEntities]
	}

	return Result{
		Success:         similarity >= c.Threshold || len(entities) > 0,
		Entities:        entities,
		Confidence:      similarity,
		Strategy:        StrategyCosine,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Metadata:        map[string]interface{}{"similarity": similarity},
	}
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true, "be": true,
	"this": true, "that": true, "it": true, "as": true, "by": true, "from": true,
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]+`)

func tokenize(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] || len(w) < 2 {
			continue
		}
		stemmed, err := english.Stem(w, false)
		if err != nil || stemmed == "" {
			stemmed = w
		}
		out = append(out, stemmed)
	}
	return out
}

// cosineSimilarity computes TF-IDF cosine similarity over the two-document
// corpus {a, b}.
func cosineSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	vocab := make(map[string]bool)
	for _, w := range a {
		vocab[w] = true
	}
	for _, w := range b {
		vocab[w] = true
	}

	docFreq := make(map[string]int)
	tfA := termFreq(a)
	tfB := termFreq(b)
	for w := range vocab {
		if tfA[w] > 0 {
			docFreq[w]++
		}
		if tfB[w] > 0 {
			docFreq[w]++
		}
	}

	const numDocs = 2.0
	vecA := make([]float64, 0, len(vocab))
	vecB := make([]float64, 0, len(vocab))
	for w := range vocab {
		idf := math.Log(numDocs/float64(docFreq[w])) + 1
		vecA = append(vecA, float64(tfA[w])*idf)
		vecB = append(vecB, float64(tfB[w])*idf)
	}

	return dotProduct(vecA, vecB) / (magnitude(vecA) * magnitude(vecB))
}

func termFreq(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return 1 // avoid division by zero; yields similarity 0
	}
	return math.Sqrt(sum)
}

func splitSentences(text string) []string {
	raw := regexp.MustCompile(`[.!?]+\s+`).Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func extractFromTopSentences(content, task string, threshold float64) []models.Entity {
	sentences := splitSentences(content)
	taskTokens := tokenize(task)

	type scored struct {
		text  string
		score float64
	}
	var candidates []scored
	for _, s := range sentences {
		sim := cosineSimilarity(tokenize(s), taskTokens)
		if sim >= threshold {
			candidates = append(candidates, scored{text: s, score: sim})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}

	var entities []models.Entity
	for _, c := range candidates {
		entities = append(entities, patternExtract(c.text)...)
	}
	return entities
}

var (
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?\d[\d\-\s().]{7,}\d`)
	urlPattern     = regexp.MustCompile(`https?://[^\s"'<>]+`)
	pricePattern   = regexp.MustCompile(`(?:[$€£¥]\s?\d[\d,]*(?:\.\d+)?|\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP))`)
	datePattern    = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`)
	companyPattern = regexp.MustCompile(`\b([A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*){0,3}\s+(?:Inc|LLC|Ltd|Corp|Corporation|Company|Co)\.?)\b`)
)

// patternExtract finds emails, phones, urls, prices, dates, and candidate
// company names in text via regex.
func patternExtract(text string) []models.Entity {
	var entities []models.Entity

	for _, m := range emailPattern.FindAllString(text, -1) {
		entities = append(entities, models.Entity{Type: models.EntityContact, Data: map[string]interface{}{"email": m}, Confidence: 0.9, Source: "cosine:pattern"})
	}
	for _, m := range phonePattern.FindAllString(text, -1) {
		entities = append(entities, models.Entity{Type: models.EntityContact, Data: map[string]interface{}{"phone": m}, Confidence: 0.6, Source: "cosine:pattern"})
	}
	for _, m := range urlPattern.FindAllString(text, -1) {
		entities = append(entities, models.Entity{Type: models.EntityCustom, Data: map[string]interface{}{"url": m}, Confidence: 0.8, Source: "cosine:pattern"})
	}
	for _, m := range pricePattern.FindAllString(text, -1) {
		entities = append(entities, models.Entity{Type: models.EntityPricing, Data: map[string]interface{}{"price": m}, Confidence: 0.7, Source: "cosine:pattern"})
	}
	for _, m := range datePattern.FindAllString(text, -1) {
		entities = append(entities, models.Entity{Type: models.EntityCustom, Data: map[string]interface{}{"date": m}, Confidence: 0.7, Source: "cosine:pattern"})
	}
	for _, m := range companyPattern.FindAllString(text, -1) {
		entities = append(entities, models.Entity{Type: models.EntityCompany, Data: map[string]interface{}{"name": strings.TrimSpace(m)}, Confidence: 0.6, Source: "cosine:pattern"})
	}

	return entities
}
