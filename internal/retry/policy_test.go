package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

func TestNewPolicyOverridesAndClamps(t *testing.T) {
	p := NewPolicy(Fixed, 5*time.Second, 2*time.Second, 3)
	assert.Equal(t, Fixed, p.Mode)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 3, p.MaxRetries)

	d := NewPolicy("bogus", 0, 0, -1)
	assert.Equal(t, DefaultPolicy(), d)
	require.NoError(t, d.Validate())
}

func TestDelayModes(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		p    Policy
		want []time.Duration
	}{
		{NewPolicy(Fixed, 100*ms, 500*ms, 3), []time.Duration{100 * ms, 100 * ms, 100 * ms}},
		{NewPolicy(Linear, 100*ms, 250*ms, 4), []time.Duration{100 * ms, 200 * ms, 250 * ms, 250 * ms}},
		{NewPolicy(Exponential, 100*ms, 500*ms, 4), []time.Duration{100 * ms, 200 * ms, 400 * ms, 500 * ms}},
	}
	for _, c := range cases {
		t.Run(string(c.p.Mode), func(t *testing.T) {
			for i, want := range c.want {
				assert.Equal(t, want, c.p.Delay(i+1), "retry %d", i+1)
			}
			assert.Zero(t, c.p.Delay(0))
		})
	}
	assert.Equal(t, 500*ms, NewPolicy(Exponential, 100*ms, 500*ms, 0).Delay(64))
}

func TestValidate(t *testing.T) {
	assert.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: 0}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
}

var errBusy = fmt.Errorf("insert run: %w",
	ferrors.WrapError(errors.New("SQLITE_BUSY"), ferrors.CategoryState, "state database locked").Retryable().Build())

func TestDoRetriesTransientErrors(t *testing.T) {
	p := NewPolicy(Fixed, time.Millisecond, time.Millisecond, 5)
	calls := 0
	err := p.Do(t.Context(), func() error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStops(t *testing.T) {
	p := NewPolicy(Fixed, time.Millisecond, time.Millisecond, 2)
	calls := 0
	err := p.Do(t.Context(), func() error { calls++; return errBusy })
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls, "first attempt plus two retries")

	calls = 0
	for _, fatal := range []error{
		errors.New("plain"),
		ferrors.WrapError(errors.New("no such table"), ferrors.CategoryState, "insert run").Build(),
	} {
		calls = 0
		err = p.Do(t.Context(), func() error { calls++; return fatal })
		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	calls = 0
	slow := NewPolicy(Fixed, time.Hour, time.Hour, 3)
	err = slow.Do(ctx, func() error { calls++; return errBusy })
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}
