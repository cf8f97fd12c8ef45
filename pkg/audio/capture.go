package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// CaptureDevice is an exclusive microphone input stream delivering blocks of
// linear PCM at the device's native rate. Start may fail (permission denial,
// device busy); a failed Start leaves nothing to clean up.
type CaptureDevice interface {
	Start(onSamples func([]float32)) error
	SampleRate() int
	Stop() error
}

type CaptureConfig struct {
	TargetRateHz int // wire sample rate, default 16000
	QueueSize    int // frames buffered between device callback and sender, default 32
}

// Capture gates, decimates and re-encodes microphone blocks for the wire.
// The device callback never blocks: when the frame queue is full the frame
// is dropped and counted, because stalling the capture device is worse than
// losing a block.
type Capture struct {
	cfg    CaptureConfig
	device CaptureDevice
	logger *zap.Logger

	listening atomic.Bool
	dropped   atomic.Int64

	mu      sync.Mutex
	started bool
	frames  chan []byte
}

func NewCapture(device CaptureDevice, cfg CaptureConfig, logger *zap.Logger) *Capture {
	if cfg.TargetRateHz <= 0 {
		cfg.TargetRateHz = 16000
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{cfg: cfg, device: device, logger: logger}
}

// Start acquires the device and begins forwarding encoded frames to onFrame
// from a dedicated goroutine. The capture starts unmuted.
func (c *Capture) Start(onFrame func(pcm []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("capture already started")
	}
	if c.device == nil {
		return fmt.Errorf("no capture device")
	}

	frames := make(chan []byte, c.cfg.QueueSize)
	srcRate := c.device.SampleRate()
	err := c.device.Start(func(samples []float32) {
		if !c.listening.Load() {
			return
		}
		pcm := EncodePCM16(Downsample(samples, srcRate, c.cfg.TargetRateHz))
		select {
		case frames <- pcm:
		default:
			c.dropped.Add(1)
		}
	})
	if err != nil {
		return fmt.Errorf("starting capture device: %w", err)
	}

	c.frames = frames
	c.started = true
	c.listening.Store(true)
	go func() {
		for pcm := range frames {
			onFrame(pcm)
		}
	}()
	return nil
}

// Stop releases the device. Safe to call from any state, any number of times.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	c.listening.Store(false)
	if err := c.device.Stop(); err != nil {
		c.logger.Warn("stopping capture device failed", zap.Error(err))
	}
	// The device delivers no further callbacks after Stop returns, so the
	// channel can be closed without racing a send.
	close(c.frames)
	c.frames = nil
}

// SetListening mutes or unmutes capture; the device stream stays open either
// way, only frame forwarding is gated.
func (c *Capture) SetListening(listening bool) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}
	c.listening.Store(listening)
}

func (c *Capture) Listening() bool {
	return c.listening.Load()
}

// Dropped reports frames discarded because the sender fell behind.
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}
