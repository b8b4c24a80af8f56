package treecomm

import "math"

// AggFunc combines one column's values across children into the parent's
// outgoing sample for that column (spec §4.4's ascend aggregation
// functions). NaN entries mean "child not ready" and are excluded from the
// aggregate; an all-NaN input aggregates to NaN (spec §8 scenario 4).
type AggFunc func(values []float64) float64

// Aggregators is the fixed registry of aggregation functions an agent may
// declare per sample-vector column.
var Aggregators = map[string]AggFunc{
	"sum":          aggSum,
	"mean":         aggMean,
	"min":          aggMin,
	"max":          aggMax,
	"logical-or":   aggLogicalOr,
	"stddev":       aggStddev,
	"select-first": aggSelectFirst,
	"expect-same":  aggExpectSame,
	"region-hash":  aggSelectFirst, // region identity is invariant across children
	"region-hint":  aggSelectFirst,
}

func present(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func aggSum(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

func aggMean(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	var s float64
	for _, v := range p {
		s += v
	}
	return s / float64(len(p))
}

func aggMin(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	m := p[0]
	for _, v := range p[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func aggMax(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	m := p[0]
	for _, v := range p[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func aggLogicalOr(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	for _, v := range p {
		if v != 0 {
			return 1
		}
	}
	return 0
}

func aggStddev(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	mean := aggMean(p)
	var sumSq float64
	for _, v := range p {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(p)))
}

func aggSelectFirst(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	return p[0]
}

// aggExpectSame requires every present value to be equal (within float
// equality); a mismatch yields NaN so the controller can surface it as a
// logic error upstream instead of silently picking one.
func aggExpectSame(values []float64) float64 {
	p := present(values)
	if len(p) == 0 {
		return math.NaN()
	}
	for _, v := range p[1:] {
		if v != p[0] {
			return math.NaN()
		}
	}
	return p[0]
}
