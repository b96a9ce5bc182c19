// package matching attaches loved status to cached tracks using only the
// name/artist strings the listening-history service reports.
//
// Normalization is lowercasing only: no punctuation stripping, no accent
// folding. An exact hit requires equal names and the remote artist matching
// either the album artist or any credited track artist; the fuzzy fallback
// accepts a combined name+artist similarity of at least 0.85. Unmatched
// entries leave the cached flag untouched and stay eligible for the next
// loved refresh.
package matching

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/registry"
	"github.com/ewhitley/cadenza/internal/shared"
	"github.com/sahilm/fuzzy"
)

// SimilarityThreshold is the minimum combined-string similarity for a fuzzy
// match to mark a track loved.
const SimilarityThreshold = 0.85

// maxFuzzyCandidates bounds how many ranked candidates get the exact
// similarity computation.
const maxFuzzyCandidates = 10

// Source is the slice of the registry the matcher reads and marks.
type Source interface {
	ExactMatch(name, artist string) (string, bool)
	TrackKeys() []registry.TrackKey
	SetLoved(id string, loved bool)
}

// Matcher reconciles a remote loved-track listing against cached records.
type Matcher struct {
	logger    *log.Logger
	threshold float64
}

// Opts contains optional Matcher settings.
type Opts struct {
	Threshold float64
	Logger    *log.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(opts Opts) *Matcher {
	if opts.Threshold <= 0 {
		opts.Threshold = SimilarityThreshold
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Matcher{
		logger:    opts.Logger.With("component", "matching"),
		threshold: opts.Threshold,
	}
}

// Apply marks every cached track that matches an entry in the remote loved
// listing. Returns the number of entries that found a track.
func (m *Matcher) Apply(src Source, loved []models.LovedEntry) int {
	keys := src.TrackKeys()

	matched := 0
	for _, entry := range loved {
		if id, ok := src.ExactMatch(entry.Name, entry.Artist); ok {
			src.SetLoved(id, true)
			matched++
			continue
		}

		if id, score, ok := m.fuzzyMatch(keys, entry); ok {
			m.logger.Debug("fuzzy loved match",
				"name", entry.Name, "artist", entry.Artist, "track", id, "score", score)
			src.SetLoved(id, true)
			matched++
			continue
		}

		m.logger.Debug("no loved match", "name", entry.Name, "artist", entry.Artist)
	}
	return matched
}

// fuzzyMatch ranks candidates by fuzzy subsequence score, then gates the best
// ones on normalized Levenshtein similarity.
func (m *Matcher) fuzzyMatch(keys []registry.TrackKey, entry models.LovedEntry) (string, float64, bool) {
	pattern := strings.ToLower(entry.Name + " " + entry.Artist)

	candidates := candidateIndexes(pattern, keys)

	bestScore := 0.0
	bestID := ""
	for _, i := range candidates {
		score := Similarity(pattern, keys[i].Combined)
		if score > bestScore {
			bestScore = score
			bestID = keys[i].ID
		}
	}

	if bestID == "" || bestScore < m.threshold {
		return "", bestScore, false
	}
	return bestID, bestScore, true
}

// candidateIndexes narrows the similarity computation to fuzzy-ranked
// candidates when the ranker finds any, falling back to every key otherwise
// (subsequence matching misses candidates shorter than the pattern).
func candidateIndexes(pattern string, keys []registry.TrackKey) []int {
	corpus := make([]string, len(keys))
	for i, k := range keys {
		corpus[i] = k.Combined
	}

	ranked := fuzzy.Find(pattern, corpus)
	if len(ranked) == 0 {
		all := make([]int, len(keys))
		for i := range keys {
			all[i] = i
		}
		return all
	}

	if len(ranked) > maxFuzzyCandidates {
		ranked = ranked[:maxFuzzyCandidates]
	}
	indexes := make([]int, len(ranked))
	for i, match := range ranked {
		indexes[i] = match.Index
	}
	return indexes
}

// Similarity is the normalized Levenshtein similarity of two strings:
// 1 means identical, 0 means nothing in common.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
