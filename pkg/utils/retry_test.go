package utils_test

import (
	"errors"
	"testing"
	"time"

	"github.com/SergeyBogomolovv/checkout-service/pkg/utils"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	cfg := utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	permanent := errors.New("permanent")

	testCases := []struct {
		name         string
		failures     int
		fnErr        error
		nonRetryable []error
		wantErr      error
		wantCalls    int
	}{
		{
			name:      "succeeds first try",
			wantCalls: 1,
		},
		{
			name:      "recovers after failure",
			failures:  1,
			fnErr:     errors.New("temporary"),
			wantCalls: 2,
		},
		{
			name:      "gives up after max attempts",
			failures:  5,
			fnErr:     errors.New("temporary"),
			wantErr:   errors.New("temporary"),
			wantCalls: 3,
		},
		{
			name:         "non retryable error returned immediately",
			failures:     5,
			fnErr:        permanent,
			nonRetryable: []error{permanent},
			wantErr:      permanent,
			wantCalls:    1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			fn := func() error {
				calls++
				if calls <= tc.failures {
					return tc.fnErr
				}
				return nil
			}

			err := utils.Retry(cfg, fn, tc.nonRetryable...)

			if tc.wantErr != nil {
				assert.EqualError(t, err, tc.wantErr.Error())
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}
