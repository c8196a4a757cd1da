package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"ordernotify/internal/domain"
	"ordernotify/internal/message"
	"ordernotify/internal/metrics"
)

// RegisterHooks subscribes the confirm/cancel notification handlers on the
// event bus. A delivery failure on this path is caught and logged here: the
// host's state transition has already committed, so the error must never
// surface as a failure of the transition itself. Operators are alerted
// instead.
func RegisterHooks(bus domain.EventBus, d *Dispatcher, templates message.Templates, alerter domain.Alerter, logger *slog.Logger) {
	bus.On(domain.EventOrderConfirmed, func(evt domain.OrderEvent) {
		handleHook(d, alerter, logger, evt, templates.ConfirmedText(evt.Order.Name))
	})
	bus.On(domain.EventOrderCancelled, func(evt domain.OrderEvent) {
		handleHook(d, alerter, logger, evt, templates.CancelledText(evt.Order.Name))
	})
}

func handleHook(d *Dispatcher, alerter domain.Alerter, logger *slog.Logger, evt domain.OrderEvent, text string) {
	ctx := context.Background()
	metrics.EventsHandled.Inc()

	if err := d.SendText(ctx, evt.Order, evt.Order.ContactPhone(), text); err != nil {
		logger.Error("hook notification failed",
			"kind", evt.Kind,
			"order", evt.Order.Name,
			"err", err,
		)
		if alerter != nil {
			alerter.Alert(ctx, fmt.Sprintf("ordernotify: %s notification for order %s failed: %v",
				evt.Kind, evt.Order.Name, err))
		}
	}
}
