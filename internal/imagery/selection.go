package imagery

import (
	"sort"
	"time"
)

// Coverage-combination constants. These come straight from the field-tuned
// tool this service replaces and are preserved as-is.
const (
	// Scenes covering less than this are useless on their own.
	minUsableCoveragePct = 2.0
	// A single scene covering more than this needs no companion.
	singleSceneCoveragePct = 98.5
	// Accumulated partial scenes stop once their coverages sum past this;
	// two-or-more partial scenes overlapping a tile by ~1.7x tend to
	// compensate each other's no-data gaps.
	combinedCoverageTargetPct = 170.0
)

// Candidate is one discoverable scene considered by the selection policies.
type Candidate interface {
	ID() string
	DateTime() time.Time
	// Coverage returns the usable-data percentage (100 - no-data). For
	// Sentinel scenes this may trigger a guarded metadata fetch.
	Coverage() (float64, error)
}

func sortByDateDesc(scenes []Candidate) []Candidate {
	sorted := make([]Candidate, len(scenes))
	copy(sorted, scenes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DateTime().After(sorted[j].DateTime())
	})
	return sorted
}

// SelectByCoverage picks the minimal best-covering subset of one tile's
// scenes, most recent first. A near-complete scene short-circuits alone;
// otherwise partial scenes accumulate until their coverage sum passes the
// combined target. Whatever accumulated is returned when the list runs out,
// possibly nothing.
func SelectByCoverage(scenes []Candidate) ([]Candidate, error) {
	var picked []Candidate
	total := 0.0
	for _, scene := range sortByDateDesc(scenes) {
		coverage, err := scene.Coverage()
		if err != nil {
			return nil, err
		}

		if coverage < minUsableCoveragePct {
			continue
		}

		if coverage > singleSceneCoveragePct {
			return []Candidate{scene}, nil
		}

		picked = append(picked, scene)
		total += coverage
		if total > combinedCoverageTargetPct {
			return picked, nil
		}
	}
	return picked, nil
}

// SelectMostRecent returns the single most recent scene inside the window,
// or false when none qualifies. Ties on the timestamp keep the first scene
// encountered in the input order.
func SelectMostRecent(scenes []Candidate, window Window) (Candidate, bool) {
	var best Candidate
	for _, scene := range scenes {
		if !window.Contains(scene.DateTime()) {
			continue
		}
		if best != nil && !scene.DateTime().After(best.DateTime()) {
			continue
		}
		best = scene
	}
	return best, best != nil
}
