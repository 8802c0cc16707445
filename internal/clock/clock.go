package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so recency math can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func New() Clock {
	return realClock{}
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
