// Package turn implements the per-turn pipeline: validate, route
// (command vs. chat), call the model or device updater, update history,
// dispatch synthesis, and emit events.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alphaq-labs/helixr/internal/command"
	"github.com/alphaq-labs/helixr/internal/domain"
	"github.com/alphaq-labs/helixr/internal/model"
	"github.com/alphaq-labs/helixr/internal/retry"
	"github.com/alphaq-labs/helixr/internal/session"
	"github.com/alphaq-labs/helixr/internal/speech"
)

var (
	// ErrEmptyPayload is returned for a turn carrying no text and no audio.
	ErrEmptyPayload = errors.New("turn payload is empty")
	// ErrPayloadTooLarge is returned when a payload exceeds its byte ceiling.
	ErrPayloadTooLarge = errors.New("turn payload too large")
)

// Outbound event types.
const (
	EventTextReply  = "text-reply"
	EventAudioReply = "audio-reply"
	EventError      = "error"
)

// CategoryRoleReset marks an alternation violation reported to the
// caller: history has been cleared, retry fresh.
const CategoryRoleReset = "role-reset"

// DeviceApplier applies a recognized command to external device state.
type DeviceApplier interface {
	Apply(ctx context.Context, device int, action domain.Action) (bool, string)
}

// Processor runs the turn pipeline. It is shared by all sessions; all
// per-session state lives on the Session and is only touched from the
// session's worker goroutine.
type Processor struct {
	generator model.Generator
	synth     speech.Synthesizer // nil disables synthesis
	devices   DeviceApplier

	chatRetry  retry.Policy
	synthRetry retry.Policy

	maxAudioBytes int64
	maxTextBytes  int

	logger *slog.Logger
}

// Options configures a Processor. Synth may be nil to disable speech
// synthesis.
type Options struct {
	Generator     model.Generator
	Synth         speech.Synthesizer
	Devices       DeviceApplier
	ChatRetry     retry.Policy
	SynthRetry    retry.Policy
	MaxAudioBytes int64
	MaxTextBytes  int
	Logger        *slog.Logger
}

func NewProcessor(opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		generator:     opts.Generator,
		synth:         opts.Synth,
		devices:       opts.Devices,
		chatRetry:     opts.ChatRetry,
		synthRetry:    opts.SynthRetry,
		maxAudioBytes: opts.MaxAudioBytes,
		maxTextBytes:  opts.MaxTextBytes,
		logger:        logger,
	}
}

// Submit validates a payload and admits it to the session's queue.
// Validation failures are synchronous; processing is not.
func (p *Processor) Submit(sess *session.Session, payload session.Payload) error {
	if err := p.validate(payload); err != nil {
		return err
	}
	return sess.Submit(payload)
}

func (p *Processor) validate(payload session.Payload) error {
	hasText := payload.Text != ""
	hasAudio := len(payload.Audio) > 0
	if !hasText && !hasAudio {
		return ErrEmptyPayload
	}
	if hasText && len(payload.Text) > p.maxTextBytes {
		return ErrPayloadTooLarge
	}
	if hasAudio && int64(len(payload.Audio)) > p.maxAudioBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

// Process handles one admitted turn. It runs on the session's worker
// goroutine, so history access needs no locking.
func (p *Processor) Process(ctx context.Context, sess *session.Session, payload session.Payload) {
	log := p.logger.With("session_id", sess.ID)

	// Text turns consult the command interpreter before anything else:
	// commands are low-latency and deterministic, never routed through
	// the model.
	if payload.Text != "" {
		if cmd, ok := command.Detect(payload.Text); ok {
			p.processCommand(ctx, sess, payload, cmd, log)
			return
		}
	}
	p.processChat(ctx, sess, payload, log)
}

func (p *Processor) processCommand(ctx context.Context, sess *session.Session, payload session.Payload, cmd domain.Command, log *slog.Logger) {
	start := time.Now()
	_, msg := p.devices.Apply(ctx, cmd.Device, cmd.Action)
	log.Info("command turn",
		"device", cmd.Device,
		"action", cmd.Action,
		"duration_ms", time.Since(start).Milliseconds())

	sess.Append(userTurn(payload))
	sess.Append(modelTurn(msg))
	sess.Emit(session.Event{Type: EventTextReply, Reply: msg})
	p.dispatchSynthesis(ctx, sess, msg, log)
}

func (p *Processor) processChat(ctx context.Context, sess *session.Session, payload session.Payload, log *slog.Logger) {
	history := sess.History()
	if !domain.CanAcceptUserTurn(history) {
		// The upstream model rejects two consecutive same-role turns.
		// Reset locally instead of burning a doomed call.
		log.Warn("history alternation violated, resetting", "history_len", len(history))
		sess.ResetHistory()
		sess.Emit(session.Event{
			Type:     EventError,
			Category: CategoryRoleReset,
			Message:  "Conversation history was reset. Please send your message again.",
		})
		return
	}

	// The user turn is committed to history only once the model accepts
	// it; a failed turn must not leave a dangling user entry behind.
	user := userTurn(payload)
	candidate := append(history[:len(history):len(history)], user)

	var reply string
	err := p.chatRetry.Do(ctx, "chat", func(ctx context.Context) error {
		var genErr error
		reply, genErr = p.generator.Generate(ctx, candidate)
		return genErr
	})
	if err != nil {
		p.reportChatError(sess, err, log)
		return
	}

	sess.Append(user)
	sess.Append(modelTurn(reply))
	sess.Emit(session.Event{Type: EventTextReply, Reply: reply})
	p.dispatchSynthesis(ctx, sess, reply, log)
}

func (p *Processor) reportChatError(sess *session.Session, err error, log *slog.Logger) {
	category := model.CategoryOf(err)
	log.Error("chat turn failed", "category", category, "error", err)

	if category == model.CategoryInvalidRequest {
		// The model rejected the request itself, most often a
		// role-ordering violation it noticed before we did. Clear the
		// history so the next turn starts clean.
		sess.ResetHistory()
		sess.Emit(session.Event{
			Type:     EventError,
			Category: CategoryRoleReset,
			Message:  "Conversation history was reset. Please send your message again.",
		})
		return
	}

	sess.Emit(session.Event{
		Type:     EventError,
		Category: eventCategory(category),
		Message:  "The assistant is temporarily unavailable. Please try again.",
	})
}

// eventCategory maps internal error categories onto the coarse set the
// transport exposes.
func eventCategory(c model.Category) string {
	switch c {
	case model.CategoryRateLimited:
		return string(model.CategoryRateLimited)
	case model.CategoryOverloaded, model.CategoryUnavailable:
		return string(model.CategoryOverloaded)
	case model.CategoryAuthFailure:
		return string(model.CategoryAuthFailure)
	default:
		return string(model.CategoryUnknown)
	}
}

// dispatchSynthesis converts the reply to audio if synthesis is enabled.
// Failures degrade to text-only output and never fail the turn.
func (p *Processor) dispatchSynthesis(ctx context.Context, sess *session.Session, text string, log *slog.Logger) {
	if p.synth == nil {
		return
	}

	var artifact *speech.Artifact
	err := p.synthRetry.Do(ctx, "synthesis", func(ctx context.Context) error {
		var synthErr error
		artifact, synthErr = p.synth.Synthesize(ctx, text)
		return synthErr
	})
	if err != nil {
		log.Warn("speech synthesis failed, continuing text-only", "error", err)
		return
	}
	sess.Emit(session.Event{Type: EventAudioReply, AudioURL: artifact.URL})
}

func userTurn(p session.Payload) domain.Turn {
	t := domain.Turn{Role: domain.RoleUser, Timestamp: time.Now()}
	if len(p.Audio) > 0 {
		t.Audio = p.Audio
		t.MimeType = p.MimeType
	} else {
		t.Text = p.Text
	}
	return t
}

func modelTurn(text string) domain.Turn {
	return domain.Turn{Role: domain.RoleModel, Text: text, Timestamp: time.Now()}
}
