package types

// SearchPath tags which retrieval path produced a result set
type SearchPath string

const (
	PathVector   SearchPath = "vector"
	PathKeyword  SearchPath = "keyword"
	PathDegraded SearchPath = "degraded"
)

// SearchResult is a chunk with a path-dependent score.
// Vector results carry cosine similarity, keyword results carry
// the boosted idf sum divided by 100. The two scales are not comparable.
type SearchResult struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// Chunk returns the chunk view of the result
func (sr SearchResult) Chunk() Chunk {
	return Chunk{ID: sr.ID, Content: sr.Content, Metadata: sr.Metadata}
}

// RAGSource is the reranked, caller-facing form of a result
type RAGSource struct {
	FilePath       string    `json:"filePath"`
	StartLine      int       `json:"startLine"`
	EndLine        int       `json:"endLine"`
	Snippet        string    `json:"snippet"`
	RelevanceScore float64   `json:"relevanceScore"`
	Name           string    `json:"name"`
	Type           ChunkType `json:"type"`
}

// Validate checks if the source is valid
func (s *RAGSource) Validate() error {
	if s.RelevanceScore < 0 || s.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}
	if s.FilePath == "" {
		return ErrMissingFileInfo
	}
	return nil
}

// Confidence is a coarse trust level for an answer
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Confidence thresholds on the normalized [0, 1] relevance scale
const (
	HighConfidenceThreshold   = 0.7
	MediumConfidenceThreshold = 0.4
)

// ClampRelevance maps a raw score onto [0, 1]
func ClampRelevance(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ConfidenceFor classifies a raw top score
func ConfidenceFor(score float64) Confidence {
	rel := ClampRelevance(score)
	switch {
	case rel >= HighConfidenceThreshold:
		return ConfidenceHigh
	case rel >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Answer is the outcome of a question against the index
type Answer struct {
	Answer        string      `json:"answer"`
	RelevantNodes []RAGSource `json:"relevantNodes"`
	Confidence    Confidence  `json:"confidence"`
	AIGenerated   bool        `json:"aiGenerated"`
	Path          SearchPath  `json:"path"`
}
