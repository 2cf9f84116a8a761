package audio

import (
	"errors"
	"testing"
	"time"
)

func TestMockBackend_MinBufferSize(t *testing.T) {
	b := NewMockBackend()
	cfg := DeviceConfig{SampleRate: 16000, Channels: Mono}
	if got := b.MinBufferSize(cfg); got != 640 {
		t.Errorf("MinBufferSize = %d, want 640", got)
	}
	if got := b.MinBufferSize(DeviceConfig{SampleRate: 0, Channels: Mono}); got != 0 {
		t.Errorf("MinBufferSize for invalid format = %d, want 0", got)
	}

	b.MinBuffer = -1
	if got := b.MinBufferSize(cfg); got != -1 {
		t.Errorf("override MinBufferSize = %d, want -1", got)
	}
}

func TestMockDevice_ReadLifecycle(t *testing.T) {
	b := &MockBackend{ReadDelay: time.Millisecond}
	dev, err := b.Open(DeviceConfig{SampleRate: 16000, Channels: Mono, BufferSize: 64})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	buf := make([]byte, 64)
	if _, err := dev.Read(buf); !errors.Is(err, ErrDeviceStopped) {
		t.Errorf("Read before Start: expected ErrDeviceStopped, got %v", err)
	}

	if err := dev.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	n, err := dev.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read = %d, %v", n, err)
	}
	for i, v := range buf {
		if v == 0 {
			t.Fatalf("byte %d is zero", i)
		}
	}

	_ = dev.Stop()
	if _, err := dev.Read(buf); !errors.Is(err, ErrDeviceStopped) {
		t.Errorf("Read after Stop: expected ErrDeviceStopped, got %v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := dev.Close(); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("second Close: expected ErrDeviceClosed, got %v", err)
	}
	if err := dev.Start(); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Start after Close: expected ErrDeviceClosed, got %v", err)
	}
	if b.Opens() != 1 || b.Closes() != 1 {
		t.Errorf("opens/closes = %d/%d, want 1/1", b.Opens(), b.Closes())
	}
}

func TestMockDevice_StopUnblocksRead(t *testing.T) {
	b := &MockBackend{ReadDelay: time.Hour}
	dev, err := b.Open(DeviceConfig{SampleRate: 16000, Channels: Mono, BufferSize: 64})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = dev.Start()

	done := make(chan error, 1)
	go func() {
		_, err := dev.Read(make([]byte, 64))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	_ = dev.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDeviceStopped) {
			t.Errorf("expected ErrDeviceStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read still blocked after Stop")
	}
}

func TestMockDevice_InjectedReadErrors(t *testing.T) {
	injected := errors.New("overrun")
	b := &MockBackend{ReadDelay: time.Millisecond, FailReads: 2, ReadErr: injected}
	dev, _ := b.Open(DeviceConfig{SampleRate: 16000, Channels: Mono, BufferSize: 32})
	_ = dev.Start()

	buf := make([]byte, 32)
	for i := 0; i < 2; i++ {
		if _, err := dev.Read(buf); !errors.Is(err, injected) {
			t.Fatalf("read %d: expected injected error, got %v", i, err)
		}
	}
	if _, err := dev.Read(buf); err != nil {
		t.Fatalf("third read failed: %v", err)
	}
}

func TestMockBackend_OpenError(t *testing.T) {
	b := &MockBackend{OpenErr: ErrDeviceUnavailable}
	if _, err := b.Open(DeviceConfig{SampleRate: 16000, Channels: Mono}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
	if b.Opens() != 0 {
		t.Errorf("Opens = %d, want 0", b.Opens())
	}
}
