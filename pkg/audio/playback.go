package audio

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives scheduled PCM and is expected to play it as soon as its own
// buffer reaches the bytes. Reset discards anything not yet played.
type Sink interface {
	Write(pcm []byte) error
	Reset()
}

type SchedulerConfig struct {
	SampleRateHz int // default 24000
	Channels     int // default 1
}

// Scheduler lines incoming agent speech frames up on a monotonic timeline.
// Each frame starts at max(now, cursor) and advances the cursor by its own
// duration, so frames play back-to-back regardless of network jitter.
//
// The cursor re-arms lazily from wall-clock whenever the queue drains, which
// keeps latency from accumulating across idle gaps between utterances.
type Scheduler struct {
	cfg    SchedulerConfig
	sink   Sink
	logger *zap.Logger

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex
	cursor   time.Time
	queued   int
	gen      uint64
	speaking func(bool)
}

func NewScheduler(cfg SchedulerConfig, sink Sink, logger *zap.Logger) *Scheduler {
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 24000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// SetSpeakingFunc registers the callback toggled when the queue transitions
// between empty and non-empty. "Speaking" means at least one frame is queued
// or playing, not that any single frame is mid-play.
func (s *Scheduler) SetSpeakingFunc(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = fn
}

// Schedule queues one PCM16 frame and returns its scheduled start time.
func (s *Scheduler) Schedule(pcm []byte) time.Time {
	dur := Duration(len(pcm), s.cfg.SampleRateHz, s.cfg.Channels)
	now := s.now()

	s.mu.Lock()
	start := now
	if s.queued > 0 && s.cursor.After(now) {
		start = s.cursor
	}
	s.cursor = start.Add(dur)
	s.queued++
	becameActive := s.queued == 1
	gen := s.gen
	endsIn := s.cursor.Sub(now)
	speaking := s.speaking
	s.mu.Unlock()

	if becameActive && speaking != nil {
		speaking(true)
	}
	if s.sink != nil {
		if err := s.sink.Write(pcm); err != nil {
			s.logger.Warn("playback sink write failed", zap.Error(err))
		}
	}
	s.afterFunc(endsIn, func() { s.frameDone(gen) })
	return start
}

func (s *Scheduler) frameDone(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.queued == 0 {
		s.mu.Unlock()
		return
	}
	s.queued--
	drained := s.queued == 0
	if drained {
		s.cursor = time.Time{}
	}
	speaking := s.speaking
	s.mu.Unlock()

	if drained && speaking != nil {
		speaking(false)
	}
}

// Flush drops every queued frame and resets the timeline. Pending frame
// timers from before the flush are ignored when they fire.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	wasActive := s.queued > 0
	s.gen++
	s.queued = 0
	s.cursor = time.Time{}
	speaking := s.speaking
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Reset()
	}
	if wasActive && speaking != nil {
		speaking(false)
	}
}

// Active reports whether any frame is queued or playing.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued > 0
}
