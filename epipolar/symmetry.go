package epipolar

// SymmetryTest keeps only correspondences confirmed independently by both
// matching directions: (i, j) survives when the forward entry for query i has
// its best candidate at j and the reverse entry for query j has its best
// candidate back at i. Entries cleared by the ratio test (or otherwise
// holding fewer than two candidates) are skipped on both sides.
//
// For each forward entry the scan stops at the first agreeing reverse entry,
// so a forward entry yields at most one match and any later reverse entry
// that would also agree is ignored. Output order follows the forward scan.
func SymmetryTest(fwd, rev []DirectedMatch) []Match {
	var sym []Match
	for _, f := range fwd {
		if !f.Valid() {
			continue
		}
		for _, r := range rev {
			if !r.Valid() {
				continue
			}
			if f.Query == r.Candidates[0].Train && r.Query == f.Candidates[0].Train {
				sym = append(sym, Match{
					Query:    f.Query,
					Train:    f.Candidates[0].Train,
					Distance: f.Candidates[0].Distance,
				})
				break
			}
		}
	}
	return sym
}
