package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/msageha/shopfloor/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingDisplay struct {
	mu    sync.Mutex
	texts []string
}

func (d *recordingDisplay) SetTimerText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
}

func (d *recordingDisplay) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.texts) == 0 {
		return ""
	}
	return d.texts[len(d.texts)-1]
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.texts)
}

type fakeClock struct {
	now atomic.Int64
}

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.now.Store(t.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.now.Load()) }

func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{3661 * time.Second, "01:01:01"},
		{3661*time.Second + 999*time.Millisecond, "01:01:01"},
		{-5 * time.Second, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{100 * time.Hour, "100:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.d), tt.d.String())
	}
}

func TestStart_WritesImmediatelyAndTicks(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(base.Add(3661 * time.Second))
	e := New(nil, zap.NewNop(), WithClock(clock.Now), WithTick(5*time.Millisecond))
	defer e.Close()

	d := &recordingDisplay{}
	e.Start(OrderKey(100), base, "status-producao", d)
	assert.Equal(t, "01:01:01", d.last())

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return d.last() == "01:02:01" }, time.Second, 5*time.Millisecond)
}

func TestStart_ReplacesTimerUnderSameKey(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(base.Add(10 * time.Second))
	e := New(nil, nil, WithClock(clock.Now), WithTick(5*time.Millisecond))
	defer e.Close()

	first := &recordingDisplay{}
	second := &recordingDisplay{}
	key := TaskKey(100, 3, 7)

	e.Start(key, base, "status-setup", first)
	e.Start(key, base.Add(5*time.Second), "status-producao", second)

	n := first.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, first.count(), "replaced timer must not write again")
	assert.Equal(t, "00:00:05", second.last())

	start, class, ok := e.StartedAt(key)
	require.True(t, ok)
	assert.Equal(t, base.Add(5*time.Second), start)
	assert.Equal(t, "status-producao", class)
}

func TestStopAllForOrder(t *testing.T) {
	e := New(nil, nil, WithTick(5*time.Millisecond))
	defer e.Close()

	now := time.Now()
	e.Start(OrderKey(1), now, "", &recordingDisplay{})
	e.Start(TaskKey(1, 2, 3), now, "", &recordingDisplay{})
	e.Start(TaskKey(1, 2, 4), now, "", &recordingDisplay{})
	e.Start(OrderKey(2), now, "", &recordingDisplay{})

	e.StopAllForOrder(1)

	assert.False(t, e.Running(OrderKey(1)))
	assert.False(t, e.Running(TaskKey(1, 2, 3)))
	assert.False(t, e.Running(TaskKey(1, 2, 4)))
	assert.True(t, e.Running(OrderKey(2)))
}

func TestStopMissing_KeepsOrderTimerAndListedTasks(t *testing.T) {
	e := New(nil, nil, WithTick(5*time.Millisecond))
	defer e.Close()

	now := time.Now()
	e.Start(OrderKey(1), now, "", &recordingDisplay{})
	e.Start(TaskKey(1, 2, 3), now, "", &recordingDisplay{})
	e.Start(TaskKey(1, 2, 4), now, "", &recordingDisplay{})

	e.StopMissing(1, []Key{TaskKey(1, 2, 4)})

	assert.True(t, e.Running(OrderKey(1)))
	assert.False(t, e.Running(TaskKey(1, 2, 3)))
	assert.True(t, e.Running(TaskKey(1, 2, 4)))
}

func TestPersistence_OrderTimersSurviveRestart(t *testing.T) {
	store, err := storage.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	e := New(store, nil)
	e.Start(OrderKey(42), start, "status-producao", &recordingDisplay{})
	e.Start(TaskKey(42, 1, 7), start, "status-producao", &recordingDisplay{})
	e.Close()

	restarted := New(store, nil)
	defer restarted.Close()
	rec, ok := restarted.Persisted(42)
	require.True(t, ok)
	assert.True(t, start.Equal(rec.Start()))
	assert.Equal(t, "status-producao", rec.StatusClass)

	restarted.Stop(OrderKey(42))
	_, ok = restarted.Persisted(42)
	assert.False(t, ok)
}

func TestRefresh_WritesAllDisplays(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := newFakeClock(base)
	e := New(nil, nil, WithClock(clock.Now), WithTick(time.Hour))
	defer e.Close()

	a, b := &recordingDisplay{}, &recordingDisplay{}
	e.Start(OrderKey(1), base, "", a)
	e.Start(TaskKey(1, 1, 1), base.Add(-time.Hour), "", b)

	clock.Advance(2 * time.Second)
	e.Refresh()

	assert.Equal(t, "00:00:02", a.last())
	assert.Equal(t, "01:00:02", b.last())
}

func TestClose_IgnoresLaterStarts(t *testing.T) {
	e := New(nil, nil)
	e.Close()

	d := &recordingDisplay{}
	e.Start(OrderKey(1), time.Now(), "", d)
	assert.False(t, e.Running(OrderKey(1)))
	assert.Equal(t, 0, d.count())
}
