// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package abtest

import "math"

// mean returns the arithmetic mean, or 0 for an empty sample.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleVariance returns the Bessel-corrected variance, or 0 with fewer
// than two values.
func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values)-1)
}

// stdDev returns the sample standard deviation.
func stdDev(values []float64) float64 {
	return math.Sqrt(sampleVariance(values))
}

// welchT computes Welch's t statistic for two samples with unequal
// variances. Zero variance in both samples yields t = 0.
func welchT(meanA, varA float64, nA int, meanB, varB float64, nB int) float64 {
	if nA == 0 || nB == 0 {
		return 0
	}
	se := math.Sqrt(varA/float64(nA) + varB/float64(nB))
	if se == 0 {
		return 0
	}
	return (meanA - meanB) / se
}

// pValueTwoTailed approximates the two-tailed p-value of a t statistic
// using the standard normal distribution. The approximation is tight for
// the sample sizes experiments require and avoids a stats dependency;
// callers should surface sample sizes alongside the p-value.
func pValueTwoTailed(t float64) float64 {
	return math.Erfc(math.Abs(t) / math.Sqrt2)
}

// percentChange returns the change of b relative to a as a fraction, e.g.
// -0.25 when b is 25% lower than a. A zero baseline reports no change.
func percentChange(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return (b - a) / a
}
