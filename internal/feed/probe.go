package feed

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProbeTimeout bounds a connection test.
const ProbeTimeout = 5 * time.Second

// Probe opens and immediately closes one connection to target. It reports
// how long the handshake took.
func Probe(ctx context.Context, tr Transport, target Target) (time.Duration, error) {
	if strings.TrimSpace(target.URL) == "" {
		return 0, ErrAwaitingConfig
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	start := time.Now()
	s, err := tr.Dial(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", target.URL, err)
	}
	elapsed := time.Since(start)
	_ = s.Close()
	return elapsed, nil
}
