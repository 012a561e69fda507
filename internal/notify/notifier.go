// Package notify pushes position-closure alerts to operator channels.
// Every forced or conditional close raises an alert typed TP_HIT, SL_HIT or
// LIQUIDATED; the Notifier fans each one out to the configured senders
// (Telegram, Discord) and can restrict delivery to a subset of alert types,
// so an operator can subscribe to liquidations only.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel for closure alerts.
type Sender interface {
	// Send delivers one alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier fans closure alerts out to the registered senders. When alert
// types were configured, Notify forwards only alerts of those types;
// NotifyAll bypasses the filter for operational messages such as startup
// and shutdown notices.
type Notifier struct {
	senders []Sender
	allowed map[string]bool // alert types Notify forwards, empty means all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. events
// lists the alert types Notify should forward (TP_HIT, SL_HIT, LIQUIDATED);
// an empty list forwards every alert. Matching is case-insensitive.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers one alert of the given type to every sender, unless the
// configured filter excludes that type.
func (n *Notifier) Notify(ctx context.Context, alertType, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[strings.ToUpper(alertType)] {
		n.logger.DebugContext(ctx, "alert filtered out",
			slog.String("alert_type", alertType),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers to every sender regardless of the alert-type filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. Per-sender errors are collected into one
// combined error; one failing channel does not block the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "alert sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
