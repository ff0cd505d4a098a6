// Package tabid identifies one execution context of an origin.
//
// The identifier only has to tell "this tab" apart from "another tab" on
// the cross-tab channel. It combines the creation time with a random
// suffix; uniqueness is probabilistic and it must not be used as a secret.
package tabid

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/0xmhha/session-keeper/pkg/clock"
)

// suffixLen is the number of random characters appended to the timestamp.
const suffixLen = 9

// Identity lazily generates and memoizes a tab identifier.
type Identity struct {
	clock clock.Clock

	once sync.Once
	id   string
}

// New creates an identity whose timestamp comes from clk.
func New(clk clock.Clock) *Identity {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Identity{clock: clk}
}

// Fixed returns an identity that always reports id.
func Fixed(id string) *Identity {
	i := &Identity{}
	i.once.Do(func() { i.id = id })
	return i
}

// ID returns the identifier, generating it on first call.
func (i *Identity) ID() string {
	i.once.Do(func() {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
		i.id = fmt.Sprintf("tab_%d_%s", clock.Millis(i.clock.Now()), suffix)
	})
	return i.id
}
