package engines

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/go-mp3"
	"golang.org/x/time/rate"

	"github.com/glasscast/glasscast/internal/audio"
)

// slowThreshold is the speed at or below which gTTS's slow voice is used.
const slowThreshold = 0.75

// GTTSConfig holds configuration for the gTTS engine.
type GTTSConfig struct {
	// Binary is the gtts-cli executable. Defaults to "gtts-cli" in PATH.
	Binary string

	// Language code (e.g., "en", "es", "fr"). Defaults to "en".
	Language string

	// SampleRate is the rate decoded audio is resampled to. Defaults to
	// 22050.
	SampleRate int

	// RequestsPerMinute limits requests to avoid being blocked. Defaults to
	// 50.
	RequestsPerMinute int

	// Timeout bounds one request. Defaults to 30s.
	Timeout time.Duration
}

// GTTS synthesizes speech with Google Translate TTS through gtts-cli. The
// MP3 it produces is decoded in-process, downmixed to mono and resampled.
type GTTS struct {
	binary     string
	language   string
	sampleRate int
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewGTTS checks for gtts-cli and creates the engine.
func NewGTTS(cfg GTTSConfig, opts ...Option) (*GTTS, error) {
	o := buildOptions("gtts", opts)

	if cfg.Binary == "" {
		cfg.Binary = "gtts-cli"
	}
	binary, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, &EngineError{
			Engine:  "gtts",
			Type:    "dependency",
			Message: "gtts-cli not found in PATH; install with: pip install gtts",
			Cause:   err,
		}
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &GTTS{
		binary:     binary,
		language:   cfg.Language,
		sampleRate: cfg.SampleRate,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:     o.logger,
	}, nil
}

// Name returns "gtts".
func (e *GTTS) Name() string { return "gtts" }

// SampleRate returns the output rate.
func (e *GTTS) SampleRate() int { return e.sampleRate }

// Generate synthesizes text. voiceID selects the language when set. gTTS has
// no speed control beyond its slow voice, used for speeds up to 0.75.
func (e *GTTS) Generate(ctx context.Context, text, voiceID string, speed float64) ([]byte, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	text, err := checkText("gtts", text)
	if err != nil || text == "" {
		return nil, err
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &EngineError{Engine: "gtts", Type: "timeout", Message: "rate limit wait cancelled", Cause: err}
	}

	lang := e.language
	if voiceID != "" {
		lang = voiceID
	}
	// "-" reads the text from stdin.
	args := []string{"-", "-l", lang, "-o", "-"}
	if ClampSpeed(speed) <= slowThreshold {
		args = append(args, "--slow")
	}

	start := time.Now()
	mp3Data, err := runCommand(ctx, "gtts", e.timeout, text, e.binary, args...)
	if err != nil {
		return nil, err
	}

	pcm, err := decodeMP3(mp3Data, e.sampleRate)
	if err != nil {
		return nil, &EngineError{Engine: "gtts", Type: "decode", Message: "MP3 to PCM conversion failed", Cause: err}
	}
	e.logger.Debug("gtts synthesized", "chars", len(text), "bytes", len(pcm), "took", time.Since(start))
	return pcm, nil
}

// Close marks the engine closed.
func (e *GTTS) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// decodeMP3 decodes MP3 data to mono PCM16 at rate. go-mp3 always produces
// interleaved stereo at the stream's own rate.
func decodeMP3(data []byte, rate int) ([]byte, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	stereo, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	if len(stereo) == 0 {
		return nil, fmt.Errorf("empty MP3 stream: %w", ErrNoAudio)
	}
	return audio.Resample(audio.DownmixStereo(stereo), dec.SampleRate(), rate), nil
}

var _ audio.SynthesisEngine = (*GTTS)(nil)
