package llm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/deskchat/internal/llm"
)

func TestRetryPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := llm.DefaultRetryPolicy()

	assert.Equal(t, 3, p.Retries)
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4), "capped at MaxDelay")
	assert.Equal(t, 5*time.Second, p.Delay(10))
	assert.Equal(t, time.Second, p.Delay(0), "non-positive retry index clamps to first")
}

func TestRetryPolicy_Delay_NoCap(t *testing.T) {
	t.Parallel()

	p := llm.RetryPolicy{MinDelay: 100 * time.Millisecond, Factor: 3}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(2))
	assert.Equal(t, 900*time.Millisecond, p.Delay(3))
}
