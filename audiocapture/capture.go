// Package audiocapture provides microphone capture as fixed-size float32
// frames suitable for streaming to a transcription server.
package audiocapture

import (
	"errors"
	"sync"
)

// ErrNotInitialized is returned when Start is called before a successful
// Initialize.
var ErrNotInitialized = errors.New("audio device not initialized")

// ErrAlreadyCapturing is returned when trying to start capture while already capturing.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// Config holds configuration for audio capture.
type Config struct {
	SampleRate int // default 16000 Hz (optimal for Whisper)
	FrameSize  int // samples per emitted frame, default 4096
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  4096,
	}
}

// Capture acquires the microphone and delivers mono float32 samples in
// fixed-size frames. Samples are normalized to [-1, 1]; partial frames are
// held back until enough samples arrive.
type Capture struct {
	mu sync.Mutex

	sampleRate int
	frameSize  int

	initialized bool
	capturing   bool
	device      string

	chunker *frameChunker
	onFrame []func(samples []float32)

	impl captureImpl
}

// captureImpl is the backend interface. The default backend runs an ffmpeg
// subprocess; tests substitute a fake.
type captureImpl interface {
	start(sampleRate int, device string, callback func(samples []float32)) error
	stop()
}

// New creates a capture instance. The device is not touched until Initialize.
func New(cfg Config) *Capture {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = 4096
	}
	c := &Capture{
		sampleRate: cfg.SampleRate,
		frameSize:  cfg.FrameSize,
		impl:       newFFmpegImpl(),
	}
	c.chunker = newFrameChunker(cfg.FrameSize, c.emitFrame)
	return c
}

// Initialize acquires the named input device ("" selects the system
// default). It reports false when the device or the capture backend is
// unavailable; in that case Start will fail and Cleanup remains safe.
func (c *Capture) Initialize(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !backendAvailable() {
		return false
	}
	c.device = deviceID
	c.initialized = true
	return true
}

// Start begins capturing. The backend resamples the device's native rate to
// the configured one, so an interface that cannot open 16 kHz directly still
// produces conforming frames.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if c.capturing {
		return ErrAlreadyCapturing
	}

	err := c.impl.start(c.sampleRate, c.device, c.chunker.feed)
	if err != nil {
		return err
	}
	c.capturing = true
	return nil
}

// Stop halts capture. Idempotent; buffered partial frames are discarded.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return
	}
	c.capturing = false
	c.impl.stop()
	c.chunker.reset()
}

// Cleanup releases the device. Safe to call before Initialize and more than
// once; the instance can be re-initialized afterwards.
func (c *Capture) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		c.capturing = false
		c.impl.stop()
		c.chunker.reset()
	}
	c.initialized = false
	c.device = ""
}

// IsCapturing reports whether capture is running.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// OnFrame registers a callback for complete frames. Each callback receives
// its own copy, exactly FrameSize samples long.
func (c *Capture) OnFrame(fn func(samples []float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = append(c.onFrame, fn)
}

func (c *Capture) emitFrame(frame []float32) {
	c.mu.Lock()
	callbacks := c.onFrame
	c.mu.Unlock()

	for _, fn := range callbacks {
		own := make([]float32, len(frame))
		copy(own, frame)
		fn(own)
	}
}

// frameChunker reassembles an arbitrary sample stream into exact fixed-size
// frames.
type frameChunker struct {
	mu      sync.Mutex
	size    int
	pending []float32
	emit    func(frame []float32)
}

func newFrameChunker(size int, emit func(frame []float32)) *frameChunker {
	return &frameChunker{
		size:    size,
		pending: make([]float32, 0, size),
		emit:    emit,
	}
}

func (fc *frameChunker) feed(samples []float32) {
	fc.mu.Lock()
	fc.pending = append(fc.pending, samples...)
	var frames [][]float32
	for len(fc.pending) >= fc.size {
		frame := make([]float32, fc.size)
		copy(frame, fc.pending[:fc.size])
		fc.pending = fc.pending[fc.size:]
		frames = append(frames, frame)
	}
	fc.mu.Unlock()

	for _, frame := range frames {
		fc.emit(frame)
	}
}

func (fc *frameChunker) reset() {
	fc.mu.Lock()
	fc.pending = fc.pending[:0]
	fc.mu.Unlock()
}
