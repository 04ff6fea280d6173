package cluster

import "math"

// SpectralFeatures computes the small set of inter-arrival spectral
// features used by the feature vector: spectral entropy, harmonic ratio,
// peak-to-average ratio, and dominant frequency, from a naive discrete
// Fourier transform of the (mean-removed) inter-arrival series. Traffic
// signatures carry at most a few hundred recent intervals, so an O(n^2) DFT
// is cheap enough to avoid pulling in an FFT dependency for this single
// call site.
func SpectralFeatures(interArrivalSeconds []float64) (spectralEntropy, harmonicRatio, peakToAverage, dominantFreqHz float64) {
	n := len(interArrivalSeconds)
	if n < 4 {
		return 0, 0, 0, 0
	}

	mean := 0.0
	for _, v := range interArrivalSeconds {
		mean += v
	}
	mean /= float64(n)

	centered := make([]float64, n)
	for i, v := range interArrivalSeconds {
		centered[i] = v - mean
	}

	// Average sampling interval, to convert a bin index into Hz.
	sampleInterval := mean
	if sampleInterval <= 0 {
		sampleInterval = 1
	}

	nBins := n / 2
	if nBins == 0 {
		return 0, 0, 0, 0
	}
	power := make([]float64, nBins)
	var total float64
	for k := 0; k < nBins; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			angle := 2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += centered[t] * math.Cos(angle)
			im -= centered[t] * math.Sin(angle)
		}
		p := re*re + im*im
		power[k] = p
		total += p
	}

	if total <= 0 {
		return 0, 0, 0, 0
	}

	// Spectral entropy: Shannon entropy of the normalized power spectrum,
	// normalized to [0,1] by log2(nBins).
	var entropy float64
	peakIdx := 0
	peakPower := 0.0
	for k, p := range power {
		prob := p / total
		if prob > 0 {
			entropy -= prob * math.Log2(prob)
		}
		if p > peakPower {
			peakPower = p
			peakIdx = k
		}
	}
	maxEntropy := math.Log2(float64(nBins))
	if maxEntropy > 0 {
		spectralEntropy = entropy / maxEntropy
	}

	avgPower := total / float64(nBins)
	if avgPower > 0 {
		peakToAverage = peakPower / avgPower
	}

	// Harmonic ratio: share of total power carried by the peak frequency
	// and its first two harmonics, a proxy for how "clockwork" the timing
	// series is (bots polling at a fixed interval concentrate power there).
	harmonicPower := peakPower
	for h := 2; h <= 3; h++ {
		idx := peakIdx * h
		if idx < nBins {
			harmonicPower += power[idx]
		}
	}
	harmonicRatio = harmonicPower / total

	dominantFreqHz = float64(peakIdx) / (float64(n) * sampleInterval)

	return spectralEntropy, harmonicRatio, peakToAverage, dominantFreqHz
}
