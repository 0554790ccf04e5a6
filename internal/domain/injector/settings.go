package injector

import (
	"fmt"
	"time"

	"github.com/bugspotter/demo-platform/internal/domain"
)

// Settings is the admin-tunable, process-wide injector configuration. It is
// persisted in the store and fetched once per demo page load; the fetched
// value is threaded into the Engine constructor rather than read ambiently.
//
// Probability is a percentage in [0,100] on the wire; Engine.Config expects
// the [0,1] fraction, which TriggerProbability converts.
type Settings struct {
	Enabled     bool      `json:"enabled"`
	Probability float64   `json:"probability"`
	LastUpdated time.Time `json:"last_updated"`
}

// DefaultSettings is served when no configuration has been stored yet.
func DefaultSettings() Settings {
	return Settings{Enabled: true, Probability: 30, LastUpdated: time.Now()}
}

// Validate checks the probability range.
func (s Settings) Validate() error {
	if s.Probability < 0 || s.Probability > 100 {
		return fmt.Errorf("%w: probability must be between 0 and 100", domain.ErrValidation)
	}
	return nil
}

// TriggerProbability returns the per-click trigger chance in [0,1]. A
// disabled injector never triggers.
func (s Settings) TriggerProbability() float64 {
	if !s.Enabled {
		return 0
	}
	return s.Probability / 100
}
