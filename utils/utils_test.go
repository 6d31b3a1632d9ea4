package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	t.Setenv("PL_TEST_STR", "x")
	t.Setenv("PL_TEST_INT", "20000000")
	t.Setenv("PL_TEST_FLOAT", "0.05")
	t.Setenv("PL_TEST_BOOL", "false")

	require.Equal(t, "x", GetEnvOrDefault("PL_TEST_STR", "y"))
	require.Equal(t, "y", GetEnvOrDefault("PL_TEST_UNSET", "y"))
	require.Equal(t, int64(20_000_000), GetEnvOrDefaultInt("PL_TEST_INT", 1))
	require.Equal(t, int64(1), GetEnvOrDefaultInt("PL_TEST_UNSET", 1))
	require.Equal(t, 0.05, GetEnvOrDefaultFloat("PL_TEST_FLOAT", 0.01))
	require.False(t, GetEnvOrDefaultBool("PL_TEST_BOOL", true))
	require.True(t, GetEnvOrDefaultBool("PL_TEST_UNSET", true))
}

func TestColumnNotFoundError(t *testing.T) {
	err := fmt.Errorf("error in Inspect: %w", &ColumnNotFoundError{Column: "origin", Available: []string{"a", "b"}})
	require.True(t, errors.Is(err, ErrColumnNotFound))
	require.False(t, errors.Is(err, ErrFileNotFound))

	var cnf *ColumnNotFoundError
	require.True(t, errors.As(err, &cnf))
	require.Equal(t, []string{"a", "b"}, cnf.Available)
	require.Contains(t, err.Error(), `column "origin" not found, available columns: a, b`)
}

func TestReliableExec(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := ReliableExec(ctx, time.Second*5, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = ReliableExec(ctx, time.Second*5, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("error in upload: %w", ErrWriteFailure)
	})
	require.ErrorIs(t, err, ErrWriteFailure)
	require.Equal(t, 1, calls)
}

func TestIDs(t *testing.T) {
	id := GenRandomID("req_")
	require.True(t, strings.HasPrefix(id, "req_"))
	require.Len(t, id, len("req_")+22)

	a, b := GenKSortedID("run_"), GenKSortedID("run_")
	require.True(t, strings.HasPrefix(a, "run_"))
	require.NotEqual(t, a, b)
}

func TestHelpers(t *testing.T) {
	require.Equal(t, 3, Deref[int](nil, 3))
	require.Equal(t, 4, Deref(Ptr(4), 3))
	require.NotNil(t, ArrayOrEmpty[int](nil))
	require.Empty(t, ArrayOrEmpty[int](nil))
	require.True(t, ContainsString([]string{"a", "b"}, "b"))
	require.False(t, ContainsString(nil, "b"))
}
