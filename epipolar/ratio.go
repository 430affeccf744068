package epipolar

// RatioTest clears candidate matches whose best and second-best neighbor
// distances are too close to tell apart. An entry with fewer than two
// candidates can never pass and is cleared as well. Entries are cleared in
// place so the sequence keeps its length and positional query indexing;
// the return value is the number of entries cleared.
func RatioTest(matches []DirectedMatch, ratio float64) int {
	removed := 0
	for i := range matches {
		if len(matches[i].Candidates) < 2 {
			matches[i].Candidates = nil
			removed++
			continue
		}
		if matches[i].Candidates[0].Distance/matches[i].Candidates[1].Distance > ratio {
			matches[i].Candidates = nil
			removed++
		}
	}
	return removed
}
