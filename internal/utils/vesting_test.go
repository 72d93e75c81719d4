package utils

import (
	"testing"
	"time"

	"aixblock-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func seedSchedule(start time.Time) domain.VestingSchedule {
	return domain.VestingSchedule{
		Start:   start,
		Cliff:   30 * day,
		Vesting: 365 * day,
	}
}

func TestVestedAmount_SeedScenario(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := seedSchedule(start)
	total := uint64(1_000_000)

	t.Run("Before cliff", func(t *testing.T) {
		got, err := VestedAmount(total, s, start.Add(29*day))
		require.NoError(t, err)
		assert.Equal(t, uint64(0), got)
	})

	t.Run("Before start", func(t *testing.T) {
		got, err := VestedAmount(total, s, start.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, uint64(0), got)
	})

	t.Run("Halfway through linear window", func(t *testing.T) {
		at := start.Add(30*day + 365*day/2)
		got, err := VestedAmount(total, s, at)
		require.NoError(t, err)
		assert.Equal(t, uint64(500_000), got)
	})

	t.Run("At vesting end", func(t *testing.T) {
		got, err := VestedAmount(total, s, start.Add(395*day))
		require.NoError(t, err)
		assert.Equal(t, total, got)
	})

	t.Run("Long after vesting end", func(t *testing.T) {
		got, err := VestedAmount(total, s, start.Add(10*365*day))
		require.NoError(t, err)
		assert.Equal(t, total, got)
	})
}

func TestVestedAmount_TGEUnlock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.VestingSchedule{
		Start:        start,
		Cliff:        90 * day,
		Vesting:      100 * day,
		TGEUnlockBps: 1_000,
	}
	total := uint64(1_000)

	got, err := VestedAmount(total, s, start)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got, "tge share is unlocked at start")

	got, err = VestedAmount(total, s, start.Add(89*day))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got, "nothing beyond tge during the cliff")

	got, err = VestedAmount(total, s, start.Add(140*day))
	require.NoError(t, err)
	assert.Equal(t, uint64(550), got)
}

func TestVestedAmount_ZeroWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.VestingSchedule{Start: start}

	got, err := VestedAmount(77, s, start)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), got)
}

func TestVestedAmount_Monotonic(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := seedSchedule(start)
	s.TGEUnlockBps = 250
	total := uint64(987_654_321)

	var prev uint64
	for d := -5; d <= 400; d++ {
		got, err := VestedAmount(total, s, start.Add(time.Duration(d)*day+7*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, total)
		prev = got
	}
	assert.Equal(t, total, prev)
}

func TestVestedAmount_InvalidSchedule(t *testing.T) {
	s := domain.VestingSchedule{Start: time.Now(), TGEUnlockBps: BasisPoints + 1}
	_, err := VestedAmount(1, s, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
