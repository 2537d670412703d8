package devstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alphaq-labs/helixr/internal/domain"
)

// Updater applies a parsed device command as a conditional mutation on
// the latest snapshot. All outcomes are soft: the caller receives a
// success flag and an operator-readable message, never a panic.
type Updater struct {
	store  Store
	logger *slog.Logger
}

// NewUpdater creates an Updater over the given state store.
func NewUpdater(store Store, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{store: store, logger: logger}
}

// Apply reads the latest snapshot and conditionally sets the device's
// actuator value on that exact document. Exactly one modified document
// counts as success; zero modifications (value already set, or the
// document vanished) is a soft failure with an explanatory message.
func (u *Updater) Apply(ctx context.Context, device int, action domain.Action) (bool, string) {
	if !domain.ValidDevice(device) {
		u.logger.Warn("device id out of range", "device", device, "action", action)
		return false, fmt.Sprintf("Valve %d does not exist; valid valves are %d-%d",
			device, domain.MinDevice, domain.MaxDevice)
	}

	doc, err := u.store.Latest(ctx)
	if errors.Is(err, ErrNoDocument) {
		u.logger.Error("no state document for valve update", "device", device, "action", action)
		return false, "No recent data document found"
	}
	if err != nil {
		u.logger.Error("state read failed", "device", device, "action", action, "error", err)
		return false, "State store unavailable, please try again"
	}

	value := domain.ActuatorValue(action)
	modified, err := u.store.SetActuator(ctx, doc.ID, device, value)
	if err != nil {
		u.logger.Error("valve update failed",
			"device", device,
			"action", action,
			"doc_id", doc.ID,
			"error", err,
		)
		return false, "State update failed, please try again"
	}

	u.logger.Info("valve update",
		"device", device,
		"action", action,
		"value", value,
		"doc_id", doc.ID,
		"modified", modified,
	)

	if modified == 1 {
		return true, fmt.Sprintf("Valve %d %s successfully", device, pastTense(action))
	}
	return false, fmt.Sprintf("Valve %d unchanged (modified count %d)", device, modified)
}

func pastTense(a domain.Action) string {
	if a == domain.ActionOpen {
		return "opened"
	}
	return "closed"
}
