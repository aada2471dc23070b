package research

import "time"

const (
	DefaultMaxIterations        = 3
	DefaultSearchResultCount    = 3
	DefaultPerCallTimeout       = 60 * time.Second
	DefaultSufficiencyThreshold = 300
	DefaultMinScore             = 0.3
	DefaultConcurrency          = 3
	DefaultMaxAttempts          = 3
	DefaultRetryBackoff         = time.Second
	DefaultMaxFetchChars        = 8000
	DefaultMinSummaryChars      = 40
)

// Config holds runtime configuration for a research run.
// Zero values are replaced by the defaults above.
type Config struct {
	// MaxIterations caps the number of Critic -> Planner loop-backs. Zero
	// disables loop-backs; a negative value selects DefaultMaxIterations.
	MaxIterations int
	// SearchResultCount is passed to the search provider for every sub-question.
	SearchResultCount int
	// PerCallTimeout bounds every single collaborator call (model, search, fetch).
	PerCallTimeout time.Duration
	// SufficiencyThreshold is the minimum number of runes of aggregated snippet
	// text before the researcher stops escalating to a full-page fetch.
	SufficiencyThreshold int
	// MinScore marks scored search results as low-confidence when the best
	// score is below it. Providers that do not score results report 0.
	MinScore float64
	// Concurrency limits parallel sub-question research.
	Concurrency int
	// MaxAttempts is the total number of tries for a collaborator call.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
	// CritiqueRecovery downgrades critique errors to an incomplete verdict
	// with empty feedback instead of failing the run.
	CritiqueRecovery bool
	// MaxFetchChars caps fetched page text before it is summarized.
	MaxFetchChars int
	// MinSummaryChars is the shortest summary the critic accepts as coverage.
	MinSummaryChars int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{MaxIterations: -1}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxIterations < 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.SearchResultCount <= 0 {
		c.SearchResultCount = DefaultSearchResultCount
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = DefaultPerCallTimeout
	}
	if c.SufficiencyThreshold <= 0 {
		c.SufficiencyThreshold = DefaultSufficiencyThreshold
	}
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxFetchChars <= 0 {
		c.MaxFetchChars = DefaultMaxFetchChars
	}
	if c.MinSummaryChars <= 0 {
		c.MinSummaryChars = DefaultMinSummaryChars
	}
	return c
}

// SearchResult represents a single search result
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Verdict is the critic's completeness judgment.
type Verdict struct {
	IsComplete bool   `json:"is_complete"`
	Feedback   string `json:"feedback,omitempty"`
}
