package audio

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// BackendType selects the device implementations.
type BackendType int

const (
	// BackendAuto uses mock devices in CI or when requested, otherwise the
	// production devices with a fallback to mock on failure.
	BackendAuto BackendType = iota
	// BackendProduction always uses PortAudio and oto.
	BackendProduction
	// BackendMock always uses mock devices.
	BackendMock
)

// String returns the config name of the backend type.
func (t BackendType) String() string {
	switch t {
	case BackendAuto:
		return "auto"
	case BackendProduction:
		return "production"
	case BackendMock:
		return "mock"
	default:
		return fmt.Sprintf("BackendType(%d)", int(t))
	}
}

// ParseBackendType parses "auto", "production" or "mock".
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "production", "prod":
		return BackendProduction, nil
	case "mock":
		return BackendMock, nil
	}
	return BackendAuto, fmt.Errorf("unknown audio backend %q", s)
}

// IsCI detects if we're running in a CI environment
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
		"DRONE",
		"TEAMCITY_VERSION",
	}

	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}
	return false
}

// Backends bundles the capture backend and sink opener in use.
type Backends struct {
	Capture  CaptureBackend
	OpenSink SinkOpener
	// Mock is true when mock devices were selected up front.
	Mock bool
}

// NewBackends creates the device implementations for t. forceMock is set
// from configuration or the GLASSCAST_MOCK_AUDIO environment variable.
func NewBackends(t BackendType, forceMock bool) (Backends, error) {
	switch t {
	case BackendProduction:
		log.Debug("Using production audio backends")
		return Backends{Capture: NewPortAudioBackend(), OpenSink: NewOtoSink}, nil

	case BackendMock:
		log.Debug("Using mock audio backends")
		return mockBackends(), nil

	case BackendAuto:
		if forceMock || IsCI() {
			reason := "CI environment"
			if forceMock {
				reason = "requested"
			}
			log.Info("Using mock audio backends", "reason", reason)
			return mockBackends(), nil
		}
		mock := mockBackends()
		return Backends{
			Capture: &fallbackBackend{primary: NewPortAudioBackend(), fallback: mock.Capture},
			OpenSink: func(format Format) (PlaybackSink, error) {
				sink, err := NewOtoSink(format)
				if err != nil {
					log.Warn("Failed to open playback device, falling back to mock", "error", err)
					return mock.OpenSink(format)
				}
				return sink, nil
			},
		}, nil

	default:
		return Backends{}, fmt.Errorf("unknown audio backend type: %v", t)
	}
}

func mockBackends() Backends {
	return Backends{
		Capture: NewMockBackend(),
		OpenSink: func(format Format) (PlaybackSink, error) {
			if err := format.Validate(); err != nil {
				return nil, err
			}
			return NewMockSink(format), nil
		},
		Mock: true,
	}
}

// fallbackBackend opens devices from primary and switches to fallback when
// primary cannot serve the format.
type fallbackBackend struct {
	primary  CaptureBackend
	fallback CaptureBackend
	failed   bool
}

func (b *fallbackBackend) active() CaptureBackend {
	if b.failed {
		return b.fallback
	}
	return b.primary
}

func (b *fallbackBackend) Name() string { return b.active().Name() }

func (b *fallbackBackend) MinBufferSize(cfg DeviceConfig) int {
	if n := b.primary.MinBufferSize(cfg); n > 0 && !b.failed {
		return n
	}
	return b.fallback.MinBufferSize(cfg)
}

func (b *fallbackBackend) Open(cfg DeviceConfig) (CaptureDevice, error) {
	if !b.failed {
		dev, err := b.primary.Open(cfg)
		if err == nil {
			return dev, nil
		}
		log.Warn("Failed to open capture device, falling back to mock",
			"backend", b.primary.Name(), "error", err)
		b.failed = true
	}
	return b.fallback.Open(cfg)
}
