package armed

import (
	"context"
	"time"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/notify"
	"github.com/cyberinferno/camingest/tenant"
	"github.com/cyberinferno/camingest/utils"
)

// AutoArmMessage is sent to a tenant's chat when it is armed automatically.
const AutoArmMessage = "System auto-armed as working hours have started."

// autoArmMargin is how close to the window start the clock must be.
const autoArmMargin = time.Minute

// AutoArmer re-arms disarmed tenants at the start of their working hours.
type AutoArmer struct {
	store    Store
	notifier notify.Notifier
	tenants  []tenant.Config
	now      func() time.Time
	logger   logger.Logger
}

// NewAutoArmer creates an auto-armer over tenants. now defaults to time.Now.
func NewAutoArmer(store Store, notifier notify.Notifier, tenants []tenant.Config, now func() time.Time, log logger.Logger) *AutoArmer {
	if now == nil {
		now = time.Now
	}

	return &AutoArmer{
		store:    store,
		notifier: notifier,
		tenants:  tenants,
		now:      now,
		logger:   log.With(logger.Field{Key: "component", Value: "autoarm"}),
	}
}

// Run checks every interval until ctx is done.
func (a *AutoArmer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.Check(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check arms every disarmed tenant whose working hours start within a
// minute of now and notifies its chat.
//
// Returns:
//   - IDs of the tenants armed by this call
func (a *AutoArmer) Check(ctx context.Context) []string {
	now := a.now()
	var armedIDs []string

	for _, t := range a.tenants {
		if !nearStart(t, now) {
			continue
		}

		armed, err := a.store.IsArmed(ctx, t)
		if err != nil {
			a.logger.Error("failed to read armed state", logger.Field{Key: "tenant", Value: t.ID}, logger.Field{Key: "error", Value: err})
			continue
		}
		if armed {
			continue
		}

		if err := a.store.SetArmed(ctx, t, true); err != nil {
			a.logger.Error("failed to auto-arm", logger.Field{Key: "tenant", Value: t.ID}, logger.Field{Key: "error", Value: err})
			continue
		}
		armedIDs = append(armedIDs, t.ID)
		a.logger.Info("tenant auto-armed", logger.Field{Key: "tenant", Value: t.ID})

		if err := a.notifier.SendMessage(ctx, t.ChatID, AutoArmMessage); err != nil {
			a.logger.Warn("auto-arm notification failed", logger.Field{Key: "tenant", Value: t.ID}, logger.Field{Key: "error", Value: err})
		}
	}

	return armedIDs
}

// nearStart reports whether now is within autoArmMargin of the tenant's
// working-hours start, either side of midnight.
func nearStart(t tenant.Config, now time.Time) bool {
	start, err := utils.ParseClock(t.WorkingStart)
	if err != nil {
		return false
	}

	diff := utils.TimeOfDay(now) - start
	if diff < 0 {
		diff = -diff
	}
	if day := 24 * time.Hour; diff > day/2 {
		diff = day - diff
	}

	return diff <= autoArmMargin
}
