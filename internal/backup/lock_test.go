package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	dest := t.TempDir()
	now := time.Now()

	lock, replaced, err := AcquireLock(dest, time.Hour, now)
	require.NoError(t, err)
	assert.Nil(t, replaced)
	assert.Equal(t, filepath.Join(dest, LockFileName), lock.Path())
	assert.Equal(t, os.Getpid(), lock.Info().PID)

	// A second run is refused while the lock is fresh
	_, _, err = AcquireLock(dest, time.Hour, now.Add(time.Minute))
	require.Error(t, err)
	assert.Equal(t, BackupErrorTypeConflict, ErrorType(err))
	assert.True(t, IsFatal(err))

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	_, err = os.Stat(lock.Path())
	assert.True(t, os.IsNotExist(err))

	again, _, err := AcquireLock(dest, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquireLock_ReplacesStaleLock(t *testing.T) {
	dest := t.TempDir()
	start := time.Now()

	_, _, err := AcquireLock(dest, time.Hour, start)
	require.NoError(t, err)

	// The holder never released; two hours later it is considered dead
	lock, replaced, err := AcquireLock(dest, time.Hour, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.True(t, replaced.StartedAt.Equal(start))
	require.NoError(t, lock.Release())
}

func TestAcquireLock_UnreadableLockUsesMtime(t *testing.T) {
	dest := t.TempDir()
	now := time.Now().Truncate(time.Second)
	path := filepath.Join(dest, LockFileName)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	backdate(t, path, now, 10*time.Minute)

	_, _, err := AcquireLock(dest, time.Hour, now)
	require.Error(t, err)

	backdate(t, path, now, 3*time.Hour)
	lock, replaced, err := AcquireLock(dest, time.Hour, now)
	require.NoError(t, err)
	assert.NotNil(t, replaced)
	require.NoError(t, lock.Release())
}

func TestAcquireLock_NeverStale(t *testing.T) {
	dest := t.TempDir()
	now := time.Now()

	_, _, err := AcquireLock(dest, 0, now)
	require.NoError(t, err)

	_, _, err = AcquireLock(dest, 0, now.Add(1000*time.Hour))
	assert.Error(t, err)
}

func TestRunLock_ReleaseNil(t *testing.T) {
	var lock *RunLock
	assert.NoError(t, lock.Release())
}
