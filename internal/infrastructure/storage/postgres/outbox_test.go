package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryBackoff(0))
	assert.Equal(t, time.Minute, retryBackoff(1))
	assert.Equal(t, 4*time.Minute, retryBackoff(3))
	assert.Equal(t, time.Hour, retryBackoff(10))
	assert.Equal(t, time.Hour, retryBackoff(1000))
}
