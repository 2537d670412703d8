// Package speech dispatches reply text to the remote synthesis service
// and stores the resulting audio artifact for the client to fetch.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/alphaq-labs/helixr/internal/model"
)

// Gemini TTS models return raw little-endian 16-bit mono PCM.
const (
	pcmSampleRate    = 24000
	pcmBitsPerSample = 16
	pcmChannels      = 1
)

var errEmptyAudio = errors.New("synthesis returned no audio data")

// Artifact references one synthesized audio file.
type Artifact struct {
	URL  string
	Path string
}

// Synthesizer turns reply text into a spoken audio artifact.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Artifact, error)
}

// Config holds synthesis parameters.
type Config struct {
	Model    string
	Voice    string
	Dir      string
	URLBase  string
	MaxRunes int
}

// Dispatcher synthesizes speech through the Gemini TTS models and writes
// WAV artifacts under a public directory. Failures are returned to the
// caller, which degrades to text-only output.
type Dispatcher struct {
	genai  *genai.Client
	cfg    Config
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher and ensures the artifact directory
// exists.
func NewDispatcher(gc *genai.Client, cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}
	return &Dispatcher{genai: gc, cfg: cfg, logger: logger}, nil
}

// Synthesize converts text to a WAV artifact. Text over the configured
// rune cap is truncated rather than rejected, so long replies still get
// a spoken lead-in.
func (d *Dispatcher) Synthesize(ctx context.Context, text string) (*Artifact, error) {
	if text == "" {
		return nil, errors.New("empty synthesis text")
	}
	if utf8.RuneCountInString(text) > d.cfg.MaxRunes {
		text = truncateRunes(text, d.cfg.MaxRunes)
		d.logger.Info("synthesis text truncated", "max_runes", d.cfg.MaxRunes)
	}

	resp, err := d.genai.Models.GenerateContent(ctx, d.cfg.Model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: d.cfg.Voice},
			},
		},
	})
	if err != nil {
		return nil, model.WrapUpstream(err)
	}

	pcm := extractAudio(resp)
	if len(pcm) == 0 {
		return nil, errEmptyAudio
	}

	name := "reply_" + uuid.NewString() + ".wav"
	path := filepath.Join(d.cfg.Dir, name)
	if err := os.WriteFile(path, pcmToWAV(pcm, pcmSampleRate, pcmBitsPerSample, pcmChannels), 0o644); err != nil {
		return nil, fmt.Errorf("write audio artifact: %w", err)
	}

	return &Artifact{URL: d.cfg.URLBase + "/" + name, Path: path}, nil
}

func extractAudio(resp *genai.GenerateContentResponse) []byte {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
