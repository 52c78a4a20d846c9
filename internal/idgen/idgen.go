package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// NewFunc generates identifiers; tests may replace it with Sequence.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }

// Sequence returns a deterministic generator producing prefix-1, prefix-2, ...
func Sequence(prefix string) func() string {
	var counter int64
	return func() string {
		return prefix + "-" + strconv.FormatInt(atomic.AddInt64(&counter, 1), 10)
	}
}
