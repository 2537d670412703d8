// Package model provides the client for the remote generative-language
// service.
package model

import (
	"context"
	"log/slog"

	"google.golang.org/genai"

	"github.com/alphaq-labs/helixr/internal/domain"
)

// systemPrompt is the assistant persona sent with every generation call.
const systemPrompt = `You are HeliXR, a polite and professional AI assistant for an AR/VR
digital twin platform in food manufacturing. You help users monitor
real-time supply chain data, operate valves by touch or voice, and
understand highlighted anomalies. Keep responses clear, courteous, and
concise; ask a clarifying question when a request is ambiguous; confirm
the result of every executed action. Never share or request sensitive
information. Be precise and avoid unnecessary verbosity.`

// Generator produces a model reply from a full conversation history.
type Generator interface {
	Generate(ctx context.Context, history []domain.Turn) (string, error)
}

// Config holds generation parameters for the remote model.
type Config struct {
	Model           string
	MaxOutputTokens int32
	Temperature     float32
}

// DefaultConfig returns default generation parameters.
func DefaultConfig(modelName string) Config {
	return Config{
		Model:           modelName,
		MaxOutputTokens: 1024,
		Temperature:     0.7,
	}
}

// Client calls the Gemini API with the orchestrator persona. It is safe
// for concurrent use by multiple sessions.
type Client struct {
	genai  *genai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient wraps an authenticated genai client for chat generation.
func NewClient(gc *genai.Client, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{genai: gc, cfg: cfg, logger: logger}
}

// Generate sends the full history to the model and returns the reply
// text. History must already satisfy the alternation invariant; the
// upstream service rejects two consecutive turns of the same role.
// Failures are returned as *UpstreamError.
func (c *Client) Generate(ctx context.Context, history []domain.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		contents = append(contents, toContent(t))
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.Model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		MaxOutputTokens:   c.cfg.MaxOutputTokens,
		Temperature:       genai.Ptr(c.cfg.Temperature),
	})
	if err != nil {
		return "", WrapUpstream(err)
	}

	text := resp.Text()
	if text == "" {
		c.logger.Warn("model returned empty reply", "model", c.cfg.Model)
		return "", &UpstreamError{Category: CategoryUnknown, Message: "empty model response"}
	}
	return text, nil
}

// toContent converts a turn into the wire representation. Audio turns
// become inline-data parts with their declared mime type so spoken input
// is understood in place, without a separate transcription round trip.
func toContent(t domain.Turn) *genai.Content {
	var role genai.Role = genai.RoleUser
	if t.Role == domain.RoleModel {
		role = genai.RoleModel
	}
	if t.IsAudio() {
		return genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText("Respond to the following spoken input."),
			genai.NewPartFromBytes(t.Audio, t.MimeType),
		}, role)
	}
	return genai.NewContentFromText(t.Text, role)
}
