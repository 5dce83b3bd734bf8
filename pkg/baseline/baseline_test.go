package baseline_test

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

func TestStat(t *testing.T) {
	a := assert.New(t)

	var s baseline.Stat
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Add(x)
	}

	a.EqualValues(8, s.Count)
	a.InDelta(5.0, s.Mean, 1e-9)
	a.InDelta(32.0/7.0, s.Variance(), 1e-9)
	a.InDelta(math.Sqrt(32.0/7.0), s.StdDev(), 1e-9)

	a.InDelta(0, s.Deviation(5), 1e-9)
	a.InDelta(baseline.MaxDeviation, s.Deviation(1e9), 1e-9)

	// NaN is ignored
	s.Add(math.NaN())
	a.EqualValues(8, s.Count)

	// no spread
	var flat baseline.Stat
	flat.Add(3)
	flat.Add(3)
	a.Equal(0.0, flat.Deviation(3))
	a.Equal(baseline.MaxDeviation, flat.Deviation(4))

	var empty baseline.Stat
	a.Equal(0.0, empty.Deviation(100))
}

func TestValueSetEviction(t *testing.T) {
	a := assert.New(t)

	vs := baseline.NewValueSet(3)
	vs.Touch("a")
	vs.Touch("b")
	vs.Touch("c")

	// refreshing "a" makes "b" the least recently seen
	vs.Touch("a")
	vs.Touch("d")

	a.Equal(3, vs.Len())
	a.True(vs.Contains("a"))
	a.False(vs.Contains("b"))
	a.True(vs.Contains("c"))
	a.True(vs.Contains("d"))

	// memory stays bounded regardless of history
	for i := 0; i < 1000; i++ {
		vs.Touch(fmt.Sprintf("v%d", i))
	}

	a.Equal(3, vs.Len())
	a.True(vs.Contains("v999"))

	clone := vs.Clone()
	clone.Touch("zzz")
	a.False(vs.Contains("zzz"))
}

func newStore(t *testing.T, repo baseline.ProfileRepository) *baseline.Store {
	s, err := baseline.NewStore(repo, 16)
	require.NoError(t, err)
	require.NoError(t, s.SetLogger(zap.NewNop()))

	return s
}

func TestStoreUpdateAndReset(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	s := newStore(t, baseline.NewMemoryRepository())
	deviceID := uuid.New()

	p, err := s.Profile(ctx, deviceID)
	a.NoError(err)
	a.EqualValues(0, p.Observations)
	a.False(p.IsMature(baseline.DefaultMinObservations))

	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	for i := 0; i < baseline.DefaultMinObservations; i++ {
		_, err = s.Update(ctx, deviceID, baseline.Observation{At: at, Command: "ls -la"})
		a.NoError(err)
	}

	_, err = s.Update(ctx, deviceID, baseline.Observation{
		At:         at,
		HasMetrics: true,
		CPU:        12.5,
		Memory:     40,
		Disk:       70,
	})
	a.NoError(err)

	p, err = s.Profile(ctx, deviceID)
	a.NoError(err)
	a.True(p.IsMature(baseline.DefaultMinObservations))
	a.EqualValues(baseline.DefaultMinObservations+1, p.Observations)
	a.EqualValues(baseline.DefaultMinObservations+1, p.Hours[14])
	a.True(p.Commands.Contains("ls -la"))
	a.InDelta(6.0, p.CommandLength.Mean, 1e-9)
	a.InDelta(12.5, p.CPU.Mean, 1e-9)

	// snapshots are copies
	p.Commands.Touch("mutated")
	again, err := s.Profile(ctx, deviceID)
	a.NoError(err)
	a.False(again.Commands.Contains("mutated"))

	a.NoError(s.Reset(ctx, deviceID))

	p, err = s.Profile(ctx, deviceID)
	a.NoError(err)
	a.EqualValues(0, p.Observations)
	a.False(p.Commands.Contains("ls -la"))

	_, err = s.Profile(ctx, uuid.Nil)
	a.Equal(baseline.ErrInvalidDeviceID, err)
}

func TestStoreConcurrentDevices(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	s := newStore(t, baseline.NewMemoryRepository())

	devices := make([]uuid.UUID, 8)
	for i := range devices {
		devices[i] = uuid.New()
	}

	const perDevice = 200

	var wg sync.WaitGroup

	for _, id := range devices {
		for w := 0; w < 4; w++ {
			wg.Add(1)

			go func(id uuid.UUID) {
				defer wg.Done()

				for i := 0; i < perDevice/4; i++ {
					unlock := s.Lock(id)
					_, err := s.Update(ctx, id, baseline.Observation{At: time.Now(), Command: "uptime"})
					unlock()

					if err != nil {
						t.Error(err)
						return
					}
				}
			}(id)
		}
	}

	wg.Wait()

	for _, id := range devices {
		p, err := s.Profile(ctx, id)
		a.NoError(err)
		a.EqualValues(perDevice, p.Observations)
	}
}

func TestBoltRepository(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "baseline.db"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	repo, err := baseline.NewBoltRepository(db)
	require.NoError(t, err)

	deviceID := uuid.New()

	_, err = repo.Get(ctx, deviceID)
	a.Equal(baseline.ErrProfileNotFound, errors.Cause(err))

	// profiles survive a store restart
	s := newStore(t, repo)
	for i := 0; i < 5; i++ {
		_, err = s.Update(ctx, deviceID, baseline.Observation{
			At:           time.Now(),
			HasProcesses: true,
			Processes:    []string{"sshd", "nginx"},
			LogSource:    "auth.log",
		})
		a.NoError(err)
	}

	restarted := newStore(t, repo)

	p, err := restarted.Profile(ctx, deviceID)
	a.NoError(err)
	a.Equal(deviceID, p.DeviceID)
	a.EqualValues(5, p.Observations)
	a.True(p.Processes.Contains("nginx"))
	a.True(p.LogSources.Contains("auth.log"))
	a.InDelta(2.0, p.ProcessCount.Mean, 1e-9)
	a.Equal(16, p.Processes.Capacity)

	a.NoError(restarted.Reset(ctx, deviceID))

	_, err = repo.Get(ctx, deviceID)
	a.Equal(baseline.ErrProfileNotFound, errors.Cause(err))
}
