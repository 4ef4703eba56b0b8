package collective

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidWorldSize  = errors.New("world size must be positive")
	ErrRankOutOfRange    = errors.New("world rank out of range")
	ErrWorldSizeMismatch = errors.New("world size mismatch")
	ErrOpMismatch        = errors.New("collective op mismatch")
	ErrNoReducer         = errors.New("no reducer configured")
	ErrTimeout           = errors.New("collective timed out")
)

// TimeoutError reports a caller that gave up waiting for its round to fill.
// Waiting holds the elapsed wait of every rank that reached the barrier;
// ranks missing from the map never arrived.
type TimeoutError struct {
	WorldSize int
	Timeout   time.Duration
	Waiting   map[int]time.Duration
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "collective timed out after %v: %d/%d ranks arrived", e.Timeout, len(e.Waiting), e.WorldSize)

	arrived := make([]int, 0, len(e.Waiting))
	for rank := range e.Waiting {
		arrived = append(arrived, rank)
	}
	sort.Ints(arrived)

	if len(arrived) > 0 {
		parts := make([]string, 0, len(arrived))
		for _, rank := range arrived {
			parts = append(parts, fmt.Sprintf("rank %d: %.1fs", rank, e.Waiting[rank].Seconds()))
		}
		fmt.Fprintf(&b, ", waited %s", strings.Join(parts, ", "))
	}

	if missing := e.Missing(); len(missing) > 0 {
		fmt.Fprintf(&b, ", missing ranks %v", missing)
	}

	return b.String()
}

// Missing lists the ranks that never reached the barrier, in order.
func (e *TimeoutError) Missing() []int {
	missing := make([]int, 0, e.WorldSize-len(e.Waiting))
	for rank := 0; rank < e.WorldSize; rank++ {
		if _, ok := e.Waiting[rank]; !ok {
			missing = append(missing, rank)
		}
	}

	return missing
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
