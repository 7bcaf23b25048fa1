package motion

// DefaultThreshold is the percentage of changed area above which a frame counts as movement.
const DefaultThreshold = 25

// Moving reports whether percent strictly exceeds threshold.
func Moving(percent float64, threshold int) bool {
	return percent > float64(threshold)
}
