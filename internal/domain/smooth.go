package domain

// SmoothingWindow is the number of samples in the trailing mean.
const SmoothingWindow = 7

// Smooth returns a copy of g with Smoothed set to the trailing mean of Cases
// over the current and SmoothingWindow-1 preceding dates of the same
// municipality. The first SmoothingWindow-1 samples of each municipality have
// an incomplete window and are assigned 0, not a partial mean.
func Smooth(g Grid) Grid {
	out := g.Clone()
	n := len(out.Codes)
	for c := range out.Codes {
		for d := range out.Dates {
			row := &out.Rows[d*n+c]
			if d < SmoothingWindow-1 {
				row.Smoothed = 0
				continue
			}
			var sum float64
			for k := d - SmoothingWindow + 1; k <= d; k++ {
				sum += out.Rows[k*n+c].Cases
			}
			row.Smoothed = sum / SmoothingWindow
		}
	}
	return out
}
