package articles

import (
	"math/rand/v2"
	"strconv"
	"time"
)

// GenerateID returns the base-36 millisecond timestamp followed by a base-36 random suffix.
// Uniqueness is probabilistic.
func GenerateID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + strconv.FormatUint(rand.Uint64(), 36)
}
