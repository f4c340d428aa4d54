package turn

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// CueCount is the number of keyboard-typing filler clips served under
// /static.
const CueCount = 10

// CueURL returns the URL of filler clip index (1-based) under base.
func CueURL(base string, index int) string {
	if index < 1 || index > CueCount {
		index = 1
	}
	return fmt.Sprintf("%s/static/keyboard-typing-%d.mp3", strings.TrimRight(base, "/"), index)
}

// RandomCue picks a filler clip index uniformly from [1, CueCount].
func RandomCue() int {
	return rand.IntN(CueCount) + 1
}
