// Package matcher resolves free-text show queries ("quiero ir a ver a
// Tini") against the active catalog. It ranks shows by a normalized
// token similarity over title, artist and venue, and refuses to pick a
// winner when the ranking is ambiguous: guessing would reserve a quota
// slot against the wrong show, so ambiguity is always reported back to
// the caller instead.
package matcher

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/indiehoy/discount-supervision/internal/model"
)

// ErrQueryTooShort is returned for queries under two characters; they
// carry too little signal to rank against the catalog.
var ErrQueryTooShort = errors.New("query must be at least 2 characters")

// Config holds the scoring thresholds. The defaults were calibrated
// against the production catalog; they are tunable configuration, not
// contracts.
type Config struct {
	MinScore  float64 // candidates below this are discarded (default 60)
	HighScore float64 // a unique match must exceed this (default 90)
	Band      float64 // runners-up within this band make the result ambiguous (default 5)
}

// DefaultConfig returns the calibrated thresholds.
func DefaultConfig() Config {
	return Config{MinScore: 60, HighScore: 90, Band: 5}
}

// Outcome classifies a match result.
type Outcome int

const (
	// NoMatch means no show scored above MinScore.
	NoMatch Outcome = iota
	// Unique means exactly one show is clearly the best candidate.
	Unique
	// Ambiguous means several shows are plausible and the caller must
	// ask the member to clarify rather than guess.
	Ambiguous
)

// Candidate pairs a show with its similarity score in [0,100].
type Candidate struct {
	Show  model.Show
	Score float64
}

// Result is the outcome of ranking a query against the catalog.
// Candidates is sorted best first; for a Unique outcome the winner is
// Candidates[0].
type Result struct {
	Outcome    Outcome
	Candidates []Candidate
}

// Best returns the top candidate, or nil when there is none.
func (r Result) Best() *Candidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// Match scores every show against the query and applies the decision
// policy: drop candidates below MinScore, sort by score with earliest
// show date as tie-break, and declare the match unique only when the
// top score exceeds HighScore and no runner-up sits within Band points
// of it. Anything else with surviving candidates is Ambiguous.
func Match(query string, shows []model.Show, cfg Config) (Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return Result{}, ErrQueryTooShort
	}
	qTokens := queryTokens(query)
	if len(qTokens) == 0 {
		return Result{}, ErrQueryTooShort
	}

	candidates := make([]Candidate, 0, len(shows))
	for _, s := range shows {
		score := score(qTokens, s)
		if score >= cfg.MinScore {
			candidates = append(candidates, Candidate{Show: s, Score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Show.ShowDate.Before(candidates[j].Show.ShowDate)
	})

	switch {
	case len(candidates) == 0:
		return Result{Outcome: NoMatch}, nil
	case candidates[0].Score > cfg.HighScore &&
		(len(candidates) == 1 || candidates[0].Score-candidates[1].Score > cfg.Band):
		return Result{Outcome: Unique, Candidates: candidates}, nil
	default:
		return Result{Outcome: Ambiguous, Candidates: candidates}, nil
	}
}

// score computes the query/show similarity: for each query token, the
// best Levenshtein similarity against any token of the show's title,
// artist or venue; the mean of those bests, scaled to [0,100]. A query
// whose tokens all appear verbatim in the show text therefore scores
// 100 regardless of how much extra text the show carries, mirroring a
// partial-ratio comparison.
func score(qTokens []string, s model.Show) float64 {
	fieldTokens := tokenize(s.Title + " " + s.Artist + " " + s.Venue)
	if len(fieldTokens) == 0 {
		return 0
	}
	var sum float64
	for _, qt := range qTokens {
		best := 0.0
		for _, ft := range fieldTokens {
			if sim := levenshtein.Similarity(qt, ft, nil); sim > best {
				best = sim
			}
			if best == 1 {
				break
			}
		}
		sum += best
	}
	return 100 * sum / float64(len(qTokens))
}

// stopwords are Spanish filler words stripped from queries. Requests
// arrive as sentences ("quiero ir a ver a Tini"); without stripping,
// the filler drags the mean similarity below MinScore even when the
// artist matches exactly. Field text is never filtered, only queries.
var stopwords = map[string]bool{
	"quiero": true, "queria": true, "ir": true, "ver": true, "al": true,
	"el": true, "la": true, "los": true, "las": true, "un": true, "una": true,
	"de": true, "del": true, "en": true, "con": true, "para": true, "por": true,
	"que": true, "me": true, "mi": true, "te": true, "se": true, "es": true,
	"hola": true, "show": true, "recital": true, "entrada": true, "entradas": true,
	"descuento": true, "solicito": true, "pido": true, "quisiera": true,
}

// queryTokens tokenizes a query and strips filler. When every token is
// filler the unfiltered tokens are kept, so a query made of common
// words still ranks rather than erroring out.
func queryTokens(q string) []string {
	all := tokenize(q)
	kept := make([]string, 0, len(all))
	for _, t := range all {
		if !stopwords[t] {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return all
	}
	return kept
}

// tokenize lower-cases and splits on anything that is not a letter or
// digit, dropping single-character fragments ("a", "y") that would
// inflate scores.
func tokenize(s string) []string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := parts[:0]
	for _, p := range parts {
		if len([]rune(p)) > 1 {
			out = append(out, p)
		}
	}
	return out
}
