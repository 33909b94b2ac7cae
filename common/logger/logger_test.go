package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	for _, development := range []bool{true, false} {
		log, err := NewLogger("payment-service", development)
		require.NoError(t, err)
		require.NotNil(t, log)
		log.Info("logger ready")
	}
}

func TestNewTestLogger(t *testing.T) {
	log := NewTestLogger(t)
	require.NotNil(t, log)
	log.Warn("visible on failure")
}
