package lock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePIDFile(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		alive    bool
		wantErr  error
	}{
		{name: "файла нет"},
		{name: "файл живого процесса", existing: "4242", alive: true, wantErr: ErrAlreadyRunning},
		{name: "файл завершившегося процесса", existing: "4242", alive: false},
		{name: "повреждённый файл", existing: "garbage", alive: true},
		{name: "пустой файл", existing: "", alive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run", "scheduler.pid")
			if tt.name != "файла нет" {
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
				require.NoError(t, os.WriteFile(path, []byte(tt.existing), 0o644))
			}

			p, err := acquirePIDFile(path, 100, func(int) bool { return tt.alive })
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				data, rerr := os.ReadFile(path)
				require.NoError(t, rerr)
				assert.Equal(t, tt.existing, string(data))
				return
			}
			require.NoError(t, err)

			pid, err := ReadPID(path)
			require.NoError(t, err)
			assert.Equal(t, 100, pid)

			require.NoError(t, p.Release())
			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestPIDFile_ReleaseKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.pid")
	p, err := acquirePIDFile(path, 100, func(int) bool { return false })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("200\n"), 0o644))
	require.NoError(t, p.Release())

	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, 200, pid)
}

func TestAcquirePIDFile_CurrentProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.pid")
	p, err := AcquirePIDFile(path)
	require.NoError(t, err)
	defer func() { _ = p.Release() }()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))

	_, err = acquirePIDFile(path, os.Getpid()+1, processAlive)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisLock_SingleLeader(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "scheduler:leader", 30*time.Second)
	second := NewRedisLock(client, "scheduler:leader", 30*time.Second)

	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "второй экземпляр не должен стать лидером")

	ok, err = first.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "повторный захват владельцем")

	require.ErrorIs(t, second.Release(ctx), ErrNotAcquired)
	assert.True(t, mr.Exists("scheduler:leader"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("scheduler:leader"))

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExtendAndExpire(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "scheduler:leader", 30*time.Second)
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(20 * time.Second)
	ok, err = l.Extend(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, mr.TTL("scheduler:leader"))

	mr.FastForward(31 * time.Second)
	ok, err = l.Extend(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "аренда истекла")

	other := NewRedisLock(client, "scheduler:leader", 30*time.Second)
	ok, err = other.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Extend(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "ключ занят другим владельцем")
}

func TestRedisLock_RedisDown(t *testing.T) {
	client, mr := setupRedis(t)
	mr.Close()

	l := NewRedisLock(client, "scheduler:leader", time.Second)
	_, err := l.TryAcquire(context.Background())
	require.Error(t, err)
}
