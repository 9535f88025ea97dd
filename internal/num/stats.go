package num

import "math"

// Sum adds the values.
func Sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// StdDev returns the population standard deviation, 0 for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var acc float64
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

// WeightedAverage returns Σ v·w / Σ w. Negative weights count as zero and a
// zero total weight yields 0.
func WeightedAverage(values, weights []float64) float64 {
	var total, weight float64
	for i, v := range values {
		if i >= len(weights) {
			break
		}
		w := weights[i]
		if w <= 0 || math.IsNaN(w) {
			continue
		}
		total += v * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}

// Pearson returns the correlation coefficient of xs and ys. Mismatched
// lengths, fewer than two points or zero variance yield 0.
func Pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	mx, my := Mean(xs), Mean(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return Clip(r, -1, 1)
}
