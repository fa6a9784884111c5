package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	base := 10 * time.Minute
	max := 6 * time.Hour

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"first failure", 1, 10 * time.Minute},
		{"second failure", 2, 20 * time.Minute},
		{"third failure", 3, 40 * time.Minute},
		{"fourth failure", 4, 80 * time.Minute},
		{"fifth failure", 5, 160 * time.Minute},
		{"capped at max", 6, 6 * time.Hour},
		{"far past the cap", 12, 6 * time.Hour},
		{"huge failure count does not overflow", 100, 6 * time.Hour},
		{"zero treated as first", 0, 10 * time.Minute},
		{"negative treated as first", -3, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryDelay(tt.failures, base, max))
		})
	}
}
