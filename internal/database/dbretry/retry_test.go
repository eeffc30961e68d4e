package dbretry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/database/dbretry"
)

var errPermanent = errors.New("constraint violation")

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"io timeout", errors.New("read: i/o timeout"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"application error", errPermanent, false},
		{"context canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.retryable, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestOperationRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	result, err := dbretry.Operation(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection refused")
		}

		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestOperationFailsFastOnPermanentErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := dbretry.Operation(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errPermanent
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestNoResult(t *testing.T) {
	t.Parallel()

	calls := 0
	err := dbretry.NoResult(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
