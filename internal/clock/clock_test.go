package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow_ReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	result := Now()
	after := time.Now()

	assert.False(t, result.Before(before))
	assert.False(t, result.After(after))
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(start)

	mock.Advance(time.Hour)

	assert.Equal(t, start.Add(time.Hour), mock.Now())
	assert.Equal(t, time.Hour, mock.Since(start))
	assert.Equal(t, -time.Hour, mock.Until(start))
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	mock := NewMockClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	ch := mock.After(time.Minute)
	assert.Equal(t, 1, mock.Waiters())

	mock.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before its deadline")
	default:
	}

	mock.Advance(30 * time.Second)
	select {
	case at := <-ch:
		assert.Equal(t, mock.Now(), at)
	default:
		t.Fatal("did not fire at its deadline")
	}
	assert.Zero(t, mock.Waiters())

	select {
	case <-mock.After(0):
	default:
		t.Fatal("zero duration should fire immediately")
	}
}

func TestMockClock_Set(t *testing.T) {
	mock := NewMockClock(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))

	newTime := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.Set(newTime)

	assert.True(t, mock.Now().Equal(newTime))
}

func TestRealClock_ImplementsClock(t *testing.T) {
	var c Clock = &RealClock{}
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)
	assert.Same(t, Real, Real)
}
