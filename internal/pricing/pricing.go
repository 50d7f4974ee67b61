// Package pricing estimates provider billing for synthesis requests.
// The provider bills per UTF-8 encoded byte, not per character.
package pricing

// ByteLength returns the UTF-8 encoded length of text. Multi-byte runes count
// as their full encoded length.
func ByteLength(text string) int {
	return len(text)
}

// EstimateCost returns the estimated charge for synthesizing text, given a
// price per million UTF-8 bytes.
func EstimateCost(text string, pricePerMillionBytes float64) float64 {
	return float64(ByteLength(text)) / 1e6 * pricePerMillionBytes
}
