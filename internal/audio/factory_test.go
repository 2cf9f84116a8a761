package audio

import (
	"errors"
	"testing"
)

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		in      string
		want    BackendType
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"auto", BackendAuto, false},
		{"Production", BackendProduction, false},
		{"prod", BackendProduction, false},
		{" mock ", BackendMock, false},
		{"alsa", BackendAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackendType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCI(t *testing.T) {
	for _, v := range []string{"CI", "CONTINUOUS_INTEGRATION", "GITHUB_ACTIONS", "GITLAB_CI",
		"JENKINS_URL", "TRAVIS", "CIRCLECI", "BUILDKITE", "DRONE", "TEAMCITY_VERSION"} {
		t.Setenv(v, "")
	}
	if IsCI() {
		t.Error("IsCI true with no CI variables set")
	}

	t.Setenv("CI", "false")
	if IsCI() {
		t.Error("IsCI true for CI=false")
	}

	t.Setenv("GITHUB_ACTIONS", "true")
	if !IsCI() {
		t.Error("IsCI false with GITHUB_ACTIONS=true")
	}
}

func TestNewBackends_Mock(t *testing.T) {
	b, err := NewBackends(BackendMock, false)
	if err != nil {
		t.Fatalf("NewBackends failed: %v", err)
	}
	if !b.Mock || b.Capture.Name() != "mock" {
		t.Errorf("expected mock backends, got %+v", b)
	}

	sink, err := b.OpenSink(Format{SampleRate: 22050, Channels: Mono})
	if err != nil {
		t.Fatalf("OpenSink failed: %v", err)
	}
	if _, ok := sink.(*MockSink); !ok {
		t.Errorf("expected *MockSink, got %T", sink)
	}
}

func TestNewBackends_AutoForcedMock(t *testing.T) {
	b, err := NewBackends(BackendAuto, true)
	if err != nil {
		t.Fatalf("NewBackends failed: %v", err)
	}
	if !b.Mock {
		t.Error("forced mock not honoured")
	}
}

func TestNewBackends_Unknown(t *testing.T) {
	if _, err := NewBackends(BackendType(42), false); err == nil {
		t.Error("expected error for unknown backend type")
	}
}

func TestFallbackBackend(t *testing.T) {
	primary := &MockBackend{OpenErr: ErrAudioUnavailable}
	fallback := NewMockBackend()
	b := &fallbackBackend{primary: primary, fallback: fallback}

	cfg := DeviceConfig{SampleRate: 16000, Channels: Mono, BufferSize: 640}
	dev, err := b.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if dev == nil || fallback.Opens() != 1 {
		t.Error("expected device from fallback backend")
	}
	if _, err := primary.Open(cfg); !errors.Is(err, ErrAudioUnavailable) {
		t.Errorf("primary should still fail, got %v", err)
	}
	if b.Name() != "mock" {
		t.Errorf("Name = %q after fallback", b.Name())
	}
}
