package playback

import (
	"math"
	"time"
)

// CaptionIndex maps a playback position to the caption shown at it:
// floor(position / duration * count), clamped to [0, count-1].
func CaptionIndex(position, duration time.Duration, count int) int {
	if count <= 0 || duration <= 0 {
		return 0
	}
	idx := int(math.Floor(float64(position) / float64(duration) * float64(count)))
	return max(0, min(idx, count-1))
}
