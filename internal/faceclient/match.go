package faceclient

import "math"

// Matcher decides whether two embeddings belong to the same person.
// Threshold is a cosine distance: lower is stricter. Policy names the
// threshold version and is stored with every attempt.
type Matcher struct {
	Threshold float64
	Policy    string
}

// Compare returns the decision and a similarity score in [0, 1] rounded to
// four decimals.
func (m Matcher) Compare(a, b []float64) (bool, float64) {
	d := CosineDistance(a, b)
	score := 1 - math.Min(d, 1)
	score = math.Round(score*10000) / 10000
	return d <= m.Threshold, score
}

// CosineDistance is 1 - cos(a, b). Mismatched or zero vectors are maximally distant.
func CosineDistance(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
