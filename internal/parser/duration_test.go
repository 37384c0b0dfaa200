package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flowka-lab/Scenario-2/internal/outcome"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2 hours", 2 * time.Hour},
		{"thirty minutes", 30 * time.Minute},
		{"1.5h", 90 * time.Minute},
		{"1,5 hours", 90 * time.Minute},
		{"2h30m", 150 * time.Minute},
		{"90 min", 90 * time.Minute},
		{"half an hour", 30 * time.Minute},
		{"half a day", 12 * time.Hour},
		{"a day and a half", 36 * time.Hour},
		{"an hour and a half", 90 * time.Minute},
		{"two and a half hours", 150 * time.Minute},
		{"1 hour 30", 90 * time.Minute},
		{"1 day 2 hours", 26 * time.Hour},
		{"tomorrow", 24 * time.Hour},
		{"about 2 hours", 2 * time.Hour},
		{"another hour", time.Hour},
		{"1 week", 7 * 24 * time.Hour},
		{"-2 hours", -2 * time.Hour},
		{"minus 30 minutes", -30 * time.Minute},
		{"  45 MINUTES ", 45 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"hours",
		"2",
		"banana",
		"2 fortnights",
		"20 seconds",
		"0 minutes",
		"400 days",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			f, ok := outcome.AsFailure(err)
			require.True(t, ok, "expected a Failure, got %v", err)
			assert.Equal(t, outcome.KindMalformedDuration, f.Kind)
			assert.Equal(t, in, f.Token)
		})
	}
}
