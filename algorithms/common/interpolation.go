package common

// ParabolicOffset fits a parabola through three equally spaced values centered
// on index 0 (y1 at -1, y2 at 0, y3 at +1) and returns the abscissa of its
// vertex. The result lies in [-1, 1]; a degenerate fit returns 0.
//
// The same formula locates both maxima and minima, so it serves peak
// refinement on correlation functions and dip refinement on difference
// functions.
func ParabolicOffset(y1, y2, y3 float64) float64 {
	denom := y1 - 2*y2 + y3
	if denom == 0 {
		return 0
	}

	offset := 0.5 * (y1 - y3) / denom
	return Clamp(offset, -1, 1)
}

// ParabolicPeak refines the location of an extremum at data[idx] using its two
// neighbours. Indices at the edges are returned unchanged.
func ParabolicPeak(data []float64, idx int) float64 {
	if idx <= 0 || idx >= len(data)-1 {
		return float64(idx)
	}
	return float64(idx) + ParabolicOffset(data[idx-1], data[idx], data[idx+1])
}
