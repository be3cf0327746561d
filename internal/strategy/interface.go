package strategy

import (
	"github.com/newthinker/meanrev/internal/core"
)

// Strategy turns the latest price and the trailing window statistics into a
// trading signal. Implementations must be pure: the same inputs always yield
// the same signal.
type Strategy interface {
	Name() string
	Description() string
	Generate(price, mean, std float64) core.Signal
}
