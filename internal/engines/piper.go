package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"

	"github.com/glasscast/glasscast/internal/audio"
)

// PiperSampleRate is the output rate of most Piper voices.
const PiperSampleRate = 22050

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Binary is the piper executable. Searched in PATH and common install
	// locations when empty.
	Binary string

	// ModelPath is the ONNX voice model. Searched in the standard voice
	// directories when empty.
	ModelPath string

	// ConfigPath is the model config JSON. Defaults to ModelPath + ".json".
	ConfigPath string

	// Speaker is the default speaker id for multi-speaker models.
	Speaker string

	// SampleRate overrides the rate read from the model config.
	SampleRate int

	// Timeout bounds one synthesis. Defaults to 30s.
	Timeout time.Duration
}

// Piper synthesizes speech offline with a fresh piper process per request.
// Text is written to the process's stdin before it starts and raw PCM16
// mono is read from stdout.
type Piper struct {
	binary     string
	modelPath  string
	configPath string
	speaker    string
	sampleRate int
	timeout    time.Duration
	logger     *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewPiper locates the piper binary and voice model and reads the model's
// sample rate.
func NewPiper(cfg PiperConfig, opts ...Option) (*Piper, error) {
	o := buildOptions("piper", opts)

	binary, err := findPiperBinary(cfg.Binary)
	if err != nil {
		return nil, err
	}

	model := cfg.ModelPath
	if model == "" {
		if model, err = findPiperModel(); err != nil {
			return nil, err
		}
	}
	if model, err = homedir.Expand(model); err != nil {
		return nil, &EngineError{Engine: "piper", Type: "model", Message: "invalid model path", Cause: err}
	}
	if _, err := os.Stat(model); err != nil {
		return nil, &EngineError{Engine: "piper", Type: "model", Message: "model file not found: " + model, Cause: err}
	}
	if !strings.HasSuffix(model, ".onnx") {
		return nil, &EngineError{Engine: "piper", Type: "model", Message: "model file must be an ONNX file (.onnx extension)"}
	}

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = model + ".json"
	}
	if configPath, err = homedir.Expand(configPath); err != nil {
		return nil, &EngineError{Engine: "piper", Type: "model", Message: "invalid config path", Cause: err}
	}
	if _, err := os.Stat(configPath); err != nil {
		// piper finds the config itself when it sits next to the model
		configPath = ""
	}

	rate := cfg.SampleRate
	if rate <= 0 && configPath != "" {
		rate, err = readModelSampleRate(configPath)
		if err != nil {
			o.logger.Warn("could not read model sample rate", "config", configPath, "err", err)
		}
	}
	if rate <= 0 {
		rate = PiperSampleRate
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	o.logger.Debug("piper ready", "binary", binary, "model", model, "rate", rate)
	return &Piper{
		binary:     binary,
		modelPath:  model,
		configPath: configPath,
		speaker:    cfg.Speaker,
		sampleRate: rate,
		timeout:    timeout,
		logger:     o.logger,
	}, nil
}

// Name returns "piper".
func (e *Piper) Name() string { return "piper" }

// SampleRate returns the voice model's output rate.
func (e *Piper) SampleRate() int { return e.sampleRate }

// Model returns the voice model path.
func (e *Piper) Model() string { return e.modelPath }

// Generate synthesizes text. voiceID selects a speaker of a multi-speaker
// model; empty uses the configured default.
func (e *Piper) Generate(ctx context.Context, text, voiceID string, speed float64) ([]byte, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	text, err := checkText("piper", text)
	if err != nil || text == "" {
		return nil, err
	}

	args := []string{
		"--model", e.modelPath,
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", lengthScale(speed)),
	}
	if e.configPath != "" {
		args = append(args, "--config", e.configPath)
	}
	if voiceID == "" {
		voiceID = e.speaker
	}
	if voiceID != "" {
		args = append(args, "--speaker", voiceID)
	}

	start := time.Now()
	pcm, err := runCommand(ctx, "piper", e.timeout, text, e.binary, args...)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("piper synthesized", "chars", len(text), "bytes", len(pcm), "took", time.Since(start))
	return pcm, nil
}

// Close marks the engine closed. Piper holds no resources between requests.
func (e *Piper) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// lengthScale converts a speed multiplier to Piper's length scale:
// 0.5 = half speed (scale 2.0), 2.0 = double speed (scale 0.5).
func lengthScale(speed float64) float64 {
	return 1.0 / ClampSpeed(speed)
}

// findPiperBinary resolves the piper executable.
func findPiperBinary(configured string) (string, error) {
	if configured != "" {
		path, err := homedir.Expand(configured)
		if err == nil {
			path, err = exec.LookPath(path)
		}
		if err != nil {
			return "", &EngineError{Engine: "piper", Type: "dependency", Message: "configured piper binary not usable: " + configured, Cause: err}
		}
		return path, nil
	}

	path, err := exec.LookPath("piper")
	if err == nil {
		return path, nil
	}

	for _, candidate := range []string{
		"/usr/local/bin/piper",
		"/usr/bin/piper",
		"/opt/piper/piper",
		"~/.local/bin/piper",
		"~/bin/piper",
	} {
		expanded, expandErr := homedir.Expand(candidate)
		if expandErr != nil {
			continue
		}
		if _, statErr := os.Stat(expanded); statErr == nil {
			return expanded, nil
		}
	}

	return "", &EngineError{
		Engine:  "piper",
		Type:    "dependency",
		Message: "piper binary not found. Please install piper TTS: https://github.com/rhasspy/piper",
		Cause:   err,
	}
}

// piperVoiceDirs are searched in order for ONNX voice models.
var piperVoiceDirs = []string{
	"~/.local/share/piper-voices",
	"~/.config/piper/voices",
	"/usr/share/piper-voices",
	"/usr/local/share/piper-voices",
	"/opt/piper/voices",
}

// errFound stops the directory walk once a model is found.
var errFound = errors.New("found")

func findPiperModel() (string, error) {
	for _, dir := range piperVoiceDirs {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			continue
		}
		if model := findModelIn(expanded); model != "" {
			return model, nil
		}
	}
	return "", &EngineError{
		Engine:  "piper",
		Type:    "model",
		Message: "no ONNX voice models found; download one from https://github.com/rhasspy/piper/releases into ~/.local/share/piper-voices/",
	}
}

// findModelIn returns the first .onnx file under dir in lexical order.
func findModelIn(dir string) string {
	var model string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".onnx") {
			model = path
			return errFound
		}
		return nil
	})
	return model
}

// piperModelConfig is the subset of a voice's .onnx.json we read.
type piperModelConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

func readModelSampleRate(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var cfg piperModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("parse model config: %w", err)
	}
	return cfg.Audio.SampleRate, nil
}

var _ audio.SynthesisEngine = (*Piper)(nil)
