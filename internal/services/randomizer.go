package services

// Linear congruential generator constants (glibc variant). The generator
// only ever runs on a seed folded from a session ID, so a given session
// sees the same draw sequence on every derivation.
const (
	lcgMultiplier int64 = 1103515245
	lcgIncrement  int64 = 12345
	lcgModulus    int64 = 1 << 31
)

// hashSessionID folds the identifier into a non-negative LCG seed.
// The fold wraps in signed 32-bit space on every step; the empty
// string seeds to 0.
func hashSessionID(id string) int64 {
	var h int32
	for _, r := range id {
		h = h*31 + int32(r)
	}
	seed := int64(h)
	if seed < 0 {
		seed = -seed
	}
	return seed
}

// FlipPattern returns the pole-flip decision for every item, keyed by item
// ID. It is a pure function of the session ID and the item order, so render
// and intake can derive identical patterns without storing anything.
//
// itemIDs must be in configuration order: the n-th item always consumes the
// n-th draw. With counterbalancing disabled every item maps to false.
func FlipPattern(sessionID string, itemIDs []string, enabled bool) map[string]bool {
	flips := make(map[string]bool, len(itemIDs))
	if !enabled {
		for _, id := range itemIDs {
			flips[id] = false
		}
		return flips
	}
	state := hashSessionID(sessionID)
	for _, id := range itemIDs {
		state = (state*lcgMultiplier + lcgIncrement) % lcgModulus
		flips[id] = float64(state)/float64(lcgModulus) > 0.5
	}
	return flips
}
