package pe

import "math"

// ByteEntropy computes the Shannon entropy of data: H = -Σ(p(x) * log2(p(x))).
// The result ranges from 0 (every byte identical) to 8 (a uniform
// distribution over all 256 byte values). Values above roughly 7.0 are the
// usual signature of compressed or encrypted payloads packed into a
// section.
func ByteEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	var entropy float64
	dataLen := float64(len(data))
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / dataLen
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// SectionEntropy reads section's raw file contents through r and reports
// their Shannon entropy, for the per-section breakdown in a HeaderSummary.
func SectionEntropy(r Readable, section SectionHeader) (float64, error) {
	if section.File.Size == 0 {
		return 0, nil
	}
	data, err := readAtFull(r, int64(section.File.Start), int(section.File.Size))
	if err != nil {
		return 0, err
	}
	return ByteEntropy(data), nil
}
