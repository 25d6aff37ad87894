package usecase

import (
	"context"
	"testing"

	"pulse-backend/internal/testsupport"

	"github.com/stretchr/testify/require"
)

func TestAdvisoryLockerExcludesOtherProcesses(t *testing.T) {
	pg := testsupport.StartPostgres(t)
	defer pg.Close()
	ctx := context.Background()

	// Two lockers stand in for two service instances sharing the database.
	first := NewAdvisoryLocker(pg.DB)
	second := NewAdvisoryLocker(pg.DB)

	unlock, ok, err := first.TryLock(ctx, "u1:slack")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.TryLock(ctx, "u1:slack")
	require.NoError(t, err)
	require.False(t, ok)

	otherUnlock, ok, err := second.TryLock(ctx, "u1:gmail")
	require.NoError(t, err)
	require.True(t, ok)
	otherUnlock()

	unlock()
	unlock()

	again, ok, err := second.TryLock(ctx, "u1:slack")
	require.NoError(t, err)
	require.True(t, ok)
	again()
}
