// Package idx mints time-ordered identifiers for bus events and outbound
// request correlation.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in canonical string form. Ids compare in creation order.
type ID string

// ids minted within one millisecond still sort in call order.
var source = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{entropy: ulid.Monotonic(rand.Reader, 0)}

// New returns an id stamped with the current time.
func New() ID { return NewAt(time.Now()) }

// NewAt returns an id stamped with t. Event ids use the bus clock.
func NewAt(t time.Time) ID {
	source.Lock()
	defer source.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), source.entropy).String())
}

func (id ID) String() string { return string(id) }

// Time is the millisecond timestamp embedded in id, or the zero time when
// id is not a ULID.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
