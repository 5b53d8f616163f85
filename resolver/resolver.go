// Package resolver implements the Intent Resolver (C4): scoring an
// endpoint catalog against a user query via a weighted blend of semantic,
// keyword, and intent-pattern similarity, with a fail-open fallback to the
// full catalog when nothing clears the relevance threshold.
package resolver

import (
	"context"
	"math"
	"sort"
	"strings"

	"goa.design/nl2api/llmgateway"
	"goa.design/nl2api/metadata"
)

const (
	semanticWeight = 0.4
	keywordWeight  = 0.3
	intentWeight   = 0.3
	lengthWeight   = 0.1
	lengthBonusMin = 20
	relevanceFloor = 0.2
)

// Candidate is a scored endpoint returned by Resolve.
type Candidate struct {
	Endpoint *metadata.Endpoint
	Score    float64
}

// Resolver scores an endpoint catalog against a user query.
type Resolver struct {
	llm llmgateway.Client
}

// New builds a Resolver backed by llm for query embeddings.
func New(llm llmgateway.Client) *Resolver {
	return &Resolver{llm: llm}
}

// Resolve scores every endpoint in catalog against query and returns the
// subset scoring at or above the relevance floor, sorted by score
// descending with (method, path) lexical tie-break. If no endpoint clears
// the floor, the full catalog is returned unfiltered (fail-open) in the
// same sorted order.
func (r *Resolver) Resolve(ctx context.Context, query string, catalog []*metadata.Endpoint) ([]Candidate, error) {
	if len(catalog) == 0 {
		return nil, nil
	}

	var queryEmbedding []float64
	if r.llm != nil {
		if vec, err := r.llm.Embed(ctx, query); err == nil {
			queryEmbedding = vec
		}
	}

	queryTokens := tokenize(query)

	scored := make([]Candidate, len(catalog))
	for i, ep := range catalog {
		semantic := cosineSimilarity(queryEmbedding, ep.EmbeddingVector)
		keyword := keywordScore(queryTokens, ep.Keywords)
		intent := intentScore(query, ep.IntentPatterns)
		lengthBonus := 0.0
		if len(ep.PromptText) > lengthBonusMin {
			lengthBonus = 1.0
		}
		score := semanticWeight*semantic + keywordWeight*keyword + intentWeight*intent + lengthWeight*lengthBonus
		scored[i] = Candidate{Endpoint: ep, Score: score}
	}

	sortCandidates(scored)

	filtered := make([]Candidate, 0, len(scored))
	for _, c := range scored {
		if c.Score >= relevanceFloor {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return scored, nil
	}
	return filtered, nil
}

func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		li, lj := cands[i].Endpoint.Label(), cands[j].Endpoint.Label()
		return li < lj
	})
}

// cosineSimilarity returns 0 when either vector is empty or of mismatched
// length, so endpoints or queries without an embedding simply contribute no
// semantic signal rather than erroring.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// keywordScore is the fraction of keywords that substring-match some query
// token in either direction.
func keywordScore(queryTokens []string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		for _, tok := range queryTokens {
			if strings.Contains(kwLower, tok) || strings.Contains(tok, kwLower) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(keywords))
}

// intentScore is the max over intent patterns of (1.0 on substring match
// either direction, else 0.7 times word-overlap ratio).
func intentScore(query string, patterns []string) float64 {
	if len(patterns) == 0 {
		return 0
	}
	queryLower := strings.ToLower(strings.TrimSpace(query))
	var best float64
	for _, p := range patterns {
		pLower := strings.ToLower(strings.TrimSpace(p))
		if pLower == "" {
			continue
		}
		var s float64
		if strings.Contains(queryLower, pLower) || strings.Contains(pLower, queryLower) {
			s = 1.0
		} else {
			s = 0.7 * wordOverlapRatio(queryLower, pLower)
		}
		if s > best {
			best = s
		}
	}
	return best
}

func wordOverlapRatio(a, b string) float64 {
	aWords := strings.Fields(a)
	bWords := strings.Fields(b)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0
	}
	bSet := make(map[string]struct{}, len(bWords))
	for _, w := range bWords {
		bSet[w] = struct{}{}
	}
	overlap := 0
	for _, w := range aWords {
		if _, ok := bSet[w]; ok {
			overlap++
		}
	}
	denom := len(aWords)
	if len(bWords) > denom {
		denom = len(bWords)
	}
	return float64(overlap) / float64(denom)
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
