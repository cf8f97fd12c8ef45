package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	writes [][]byte
	resets int
}

func (s *recordingSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, pcm)
	return nil
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// newTestScheduler pins the clock and captures frame-completion callbacks so
// tests control when frames "finish playing".
func newTestScheduler(cfg SchedulerConfig, sink Sink) (*Scheduler, *time.Time, *[]func()) {
	s := NewScheduler(cfg, sink, nil)
	now := time.Unix(1000, 0)
	var pending []func()
	s.now = func() time.Time { return now }
	s.afterFunc = func(_ time.Duration, f func()) *time.Timer {
		pending = append(pending, f)
		return nil
	}
	return s, &now, &pending
}

func TestScheduler_StartTimesMonotonicNonOverlapping(t *testing.T) {
	sink := &recordingSink{}
	s, now, _ := newTestScheduler(SchedulerConfig{SampleRateHz: 24000, Channels: 1}, sink)

	frame := make([]byte, 960) // 20ms at 24kHz mono
	frameDur := Duration(len(frame), 24000, 1)

	var starts []time.Time
	for i := 0; i < 5; i++ {
		starts = append(starts, s.Schedule(frame))
	}

	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		require.GreaterOrEqual(t, gap, frameDur, "frame %d overlaps frame %d", i, i-1)
	}
	for _, start := range starts {
		assert.False(t, start.Before(*now), "start before scheduling time")
	}
	assert.Len(t, sink.writes, 5)
}

func TestScheduler_LateFrameStartsNow(t *testing.T) {
	sink := &recordingSink{}
	s, now, pending := newTestScheduler(SchedulerConfig{SampleRateHz: 24000, Channels: 1}, sink)

	frame := make([]byte, 960)
	first := s.Schedule(frame)
	assert.Equal(t, *now, first)

	// Let the queue drain, then jump the clock well past the old cursor.
	for _, f := range *pending {
		f()
	}
	*pending = (*pending)[:0]
	*now = now.Add(5 * time.Second)

	second := s.Schedule(frame)
	assert.Equal(t, *now, second, "cursor must re-arm from wall clock after draining")
}

func TestScheduler_SpeakingTracksQueue(t *testing.T) {
	sink := &recordingSink{}
	s, _, pending := newTestScheduler(SchedulerConfig{SampleRateHz: 24000, Channels: 1}, sink)

	var transitions []bool
	s.SetSpeakingFunc(func(on bool) { transitions = append(transitions, on) })

	frame := make([]byte, 960)
	s.Schedule(frame)
	s.Schedule(frame)
	require.Equal(t, []bool{true}, transitions, "one transition while frames queue")
	assert.True(t, s.Active())

	(*pending)[0]()
	assert.Equal(t, []bool{true}, transitions, "still speaking with a frame queued")

	(*pending)[1]()
	assert.Equal(t, []bool{true, false}, transitions)
	assert.False(t, s.Active())
}

func TestScheduler_FlushDropsQueueAndIgnoresStaleTimers(t *testing.T) {
	sink := &recordingSink{}
	s, _, pending := newTestScheduler(SchedulerConfig{SampleRateHz: 24000, Channels: 1}, sink)

	var transitions []bool
	s.SetSpeakingFunc(func(on bool) { transitions = append(transitions, on) })

	frame := make([]byte, 960)
	s.Schedule(frame)
	s.Schedule(frame)
	s.Flush()

	assert.False(t, s.Active())
	assert.Equal(t, 1, sink.resets)
	assert.Equal(t, []bool{true, false}, transitions)

	// Timers armed before the flush must not disturb post-flush state.
	s.Schedule(frame)
	for _, f := range (*pending)[:2] {
		f()
	}
	assert.True(t, s.Active())
}

type fakeDevice struct {
	rate     int
	onBlock  func([]float32)
	started  bool
	stopped  bool
	startErr error
}

func (d *fakeDevice) Start(onSamples func([]float32)) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.onBlock = onSamples
	d.started = true
	return nil
}

func (d *fakeDevice) SampleRate() int { return d.rate }

func (d *fakeDevice) Stop() error {
	d.stopped = true
	return nil
}

func TestCapture_ForwardsDecimatedFrames(t *testing.T) {
	device := &fakeDevice{rate: 48000}
	c := NewCapture(device, CaptureConfig{TargetRateHz: 16000}, nil)

	frames := make(chan []byte, 8)
	require.NoError(t, c.Start(func(pcm []byte) { frames <- pcm }))
	require.True(t, c.Listening())

	device.onBlock([]float32{0.5, 0, 0, 0.5, 0, 0})
	select {
	case pcm := <-frames:
		samples := DecodePCM16(pcm)
		require.Len(t, samples, 2)
		assert.InDelta(t, 0.5, samples[0], 0.001)
		assert.InDelta(t, 0.5, samples[1], 0.001)
	case <-time.After(time.Second):
		t.Fatal("no frame forwarded")
	}

	c.Stop()
	assert.True(t, device.stopped)
}

func TestCapture_MutedFramesNotSent(t *testing.T) {
	device := &fakeDevice{rate: 16000}
	c := NewCapture(device, CaptureConfig{TargetRateHz: 16000}, nil)

	frames := make(chan []byte, 8)
	require.NoError(t, c.Start(func(pcm []byte) { frames <- pcm }))

	c.SetListening(false)
	device.onBlock([]float32{0.1, 0.2})
	select {
	case <-frames:
		t.Fatal("muted capture forwarded a frame")
	case <-time.After(50 * time.Millisecond):
	}

	c.SetListening(true)
	device.onBlock([]float32{0.1, 0.2})
	select {
	case <-frames:
	case <-time.After(time.Second):
		t.Fatal("unmuted capture forwarded nothing")
	}
	c.Stop()
}

func TestCapture_StartFailureIsClean(t *testing.T) {
	device := &fakeDevice{rate: 48000, startErr: assert.AnError}
	c := NewCapture(device, CaptureConfig{}, nil)

	err := c.Start(func([]byte) {})
	require.Error(t, err)
	assert.False(t, c.Listening())

	// A failed start leaves the pipeline reusable once the device recovers.
	device.startErr = nil
	require.NoError(t, c.Start(func([]byte) {}))
	c.Stop()
}

func TestCapture_DropsWhenQueueFull(t *testing.T) {
	device := &fakeDevice{rate: 16000}
	c := NewCapture(device, CaptureConfig{TargetRateHz: 16000, QueueSize: 1}, nil)

	block := make(chan struct{})
	require.NoError(t, c.Start(func([]byte) { <-block }))

	// First frame occupies the consumer, second fills the queue, third drops.
	device.onBlock([]float32{0.1})
	time.Sleep(20 * time.Millisecond)
	device.onBlock([]float32{0.2})
	device.onBlock([]float32{0.3})

	assert.Eventually(t, func() bool { return c.Dropped() >= 1 }, time.Second, 10*time.Millisecond)
	close(block)
	c.Stop()
}
