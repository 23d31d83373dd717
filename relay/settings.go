package relay

import "time"

const (
	defaultPollingInterval time.Duration = time.Second * 5
	defaultBatchSize       int           = 20
)

// Settings holds the outbox relay configuration.
type Settings struct {
	PollingInterval time.Duration // interval between outbox scans
	BatchSize       int           // maximum number of pending entries per scan
}

// validateSettings validates the established settings and sets defaults if
// needed.
func validateSettings(s *Settings) {
	if s.PollingInterval <= 0 {
		s.PollingInterval = defaultPollingInterval
	}
	if s.BatchSize <= 0 {
		s.BatchSize = defaultBatchSize
	}
}
