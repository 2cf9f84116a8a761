package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// MockBackend is a scripted CaptureBackend for tests and headless runs.
type MockBackend struct {
	// MinBuffer overrides the reported minimum buffer size when non-zero.
	// A negative value reports the format as unsupported.
	MinBuffer int
	// OpenErr is returned by Open when set.
	OpenErr error
	// ReadDelay is how long each Read blocks. Zero means real time for the
	// buffer size.
	ReadDelay time.Duration
	// FailReads makes the first FailReads reads of each device fail with
	// ReadErr.
	FailReads int
	ReadErr   error

	opens  atomic.Int64
	closes atomic.Int64

	mu   sync.Mutex
	last *MockDevice
}

// NewMockBackend creates a mock backend with real-time reads.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Name returns "mock".
func (b *MockBackend) Name() string { return "mock" }

// MinBufferSize returns 20 ms of audio unless overridden.
func (b *MockBackend) MinBufferSize(cfg DeviceConfig) int {
	if b.MinBuffer != 0 {
		return b.MinBuffer
	}
	if cfg.Format().Validate() != nil {
		return 0
	}
	return cfg.Format().BytesFor(20 * time.Millisecond)
}

// Open returns a new MockDevice.
func (b *MockBackend) Open(cfg DeviceConfig) (CaptureDevice, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	if err := cfg.Format().Validate(); err != nil {
		return nil, err
	}
	b.opens.Add(1)

	delay := b.ReadDelay
	if delay == 0 {
		delay = cfg.Format().Duration(cfg.BufferSize)
	}
	d := &MockDevice{
		backend:   b,
		config:    cfg,
		delay:     delay,
		failReads: b.FailReads,
		readErr:   b.ReadErr,
		stopCh:    make(chan struct{}),
	}
	b.mu.Lock()
	b.last = d
	b.mu.Unlock()
	return d, nil
}

// Opens returns the number of successful Open calls.
func (b *MockBackend) Opens() int64 { return b.opens.Load() }

// Closes returns the number of device Close calls that released a device.
func (b *MockBackend) Closes() int64 { return b.closes.Load() }

// LastDevice returns the most recently opened device.
func (b *MockBackend) LastDevice() *MockDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// MockDevice produces a deterministic non-zero sample pattern.
type MockDevice struct {
	backend *MockBackend
	config  DeviceConfig
	delay   time.Duration

	mu        sync.Mutex
	running   bool
	closed    bool
	stopCh    chan struct{}
	failReads int
	readErr   error
	counter   byte

	reads  atomic.Int64
	starts atomic.Int64
}

// Start begins streaming.
func (d *MockDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if !d.running {
		d.running = true
		d.stopCh = make(chan struct{})
		d.starts.Add(1)
	}
	return nil
}

// Read blocks for the configured delay, then fills buf.
func (d *MockDevice) Read(buf []byte) (int, error) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return 0, ErrDeviceStopped
	}
	stopCh := d.stopCh
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-stopCh:
		return 0, ErrDeviceStopped
	case <-timer.C:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads.Add(1)
	if d.failReads > 0 {
		d.failReads--
		return 0, d.readErr
	}
	for i := range buf {
		d.counter++
		// Never emit zero so muted frames are distinguishable.
		if d.counter == 0 {
			d.counter = 1
		}
		buf[i] = d.counter
	}
	return len(buf), nil
}

// Stop halts streaming and unblocks a pending Read.
func (d *MockDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.running = false
		close(d.stopCh)
	}
	return nil
}

// Close releases the device.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if d.running {
		d.running = false
		close(d.stopCh)
	}
	d.closed = true
	d.backend.closes.Add(1)
	return nil
}

// Config returns the configuration the device was opened with.
func (d *MockDevice) Config() DeviceConfig { return d.config }

// Reads returns the number of completed reads.
func (d *MockDevice) Reads() int64 { return d.reads.Load() }

// Starts returns how often streaming was started.
func (d *MockDevice) Starts() int64 { return d.starts.Load() }

var (
	_ CaptureBackend = (*MockBackend)(nil)
	_ CaptureDevice  = (*MockDevice)(nil)
)
