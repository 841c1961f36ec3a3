package search

import (
	"sort"

	"github.com/Aman-CERP/ragsearch/internal/store"
)

// Fused is one chunk after fusion.
type Fused struct {
	ChunkID     string
	Score       float64
	TextScore   float64
	VectorScore float64

	// InText and InVector record which legs returned the chunk. A vector
	// similarity may be zero or negative, so scores cannot tell.
	InText   bool
	InVector bool
}

// MatchedIn names the legs that found f: "both", "text" or "vector".
func (f Fused) MatchedIn() string {
	switch {
	case f.InText && f.InVector:
		return MatchedBoth
	case f.InText:
		return MatchedText
	case f.InVector:
		return MatchedVector
	}
	return ""
}

// Fuse joins text and vector candidates on chunk id and ranks them by
// text*w.Text + vector*w.Vector, descending, ties by chunk id ascending.
// A chunk in both lists appears once. limit <= 0 keeps every chunk.
func Fuse(text, vector []store.Candidate, w Weights, limit int) []Fused {
	if len(text) == 0 && len(vector) == 0 {
		return []Fused{}
	}

	byID := make(map[string]*Fused, len(text)+len(vector))
	order := make([]*Fused, 0, len(text)+len(vector))
	get := func(id string) *Fused {
		if f, ok := byID[id]; ok {
			return f
		}
		f := &Fused{ChunkID: id}
		byID[id] = f
		order = append(order, f)
		return f
	}

	for _, c := range text {
		f := get(c.ChunkID)
		f.TextScore, f.InText = c.Score, true
	}
	for _, c := range vector {
		f := get(c.ChunkID)
		f.VectorScore, f.InVector = c.Score, true
	}

	out := make([]Fused, len(order))
	for i, f := range order {
		f.Score = f.TextScore*w.Text + f.VectorScore*w.Vector
		out[i] = *f
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
