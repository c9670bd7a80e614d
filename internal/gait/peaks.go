package gait

import "sort"

// PeakParams constrains FindPeaks. A zero MinDistance disables the
// separation filter; HasMinHeight enables the height filter.
type PeakParams struct {
	MinDistance  int
	MinHeight    float64
	HasMinHeight bool
}

// FindPeaks returns the indices of local maxima in x, in ascending order.
//
// A peak is a sample strictly greater than its left neighbour and followed,
// possibly after a flat plateau, by a strictly smaller sample. Plateaus
// report their midpoint (rounded down). The first and last samples are never
// peaks. After the height filter, peaks closer than MinDistance samples are
// removed in order of decreasing height, so the tallest peak in any
// neighbourhood survives.
func FindPeaks(x []float64, p PeakParams) []int {
	peaks := localMaxima(x)

	if p.HasMinHeight {
		kept := peaks[:0]
		for _, i := range peaks {
			if x[i] >= p.MinHeight {
				kept = append(kept, i)
			}
		}
		peaks = kept
	}

	if p.MinDistance > 1 && len(peaks) > 1 {
		peaks = selectByDistance(x, peaks, p.MinDistance)
	}
	return peaks
}

func localMaxima(x []float64) []int {
	var peaks []int
	last := len(x) - 1
	for i := 1; i < last; i++ {
		if !(x[i-1] < x[i]) {
			continue
		}
		ahead := i + 1
		for ahead < last && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead
		}
	}
	return peaks
}

func selectByDistance(x []float64, peaks []int, distance int) []int {
	n := len(peaks)
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}

	// Visit peaks from highest to lowest.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	for o := n - 1; o >= 0; o-- {
		j := order[o]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < n && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, n)
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
