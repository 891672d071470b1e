package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bridgedesk/escalation-service/internal/config"
	"github.com/bridgedesk/escalation-service/internal/events"
)

// NotificationWorker listens to domain events and fans them out to the
// configured channels. Email delivery is a logging stub; the webhook, when
// configured, receives the raw event as JSON. Failures never propagate back
// into the operation that raised the event.
type NotificationWorker struct {
	cfg    config.NotificationConfig
	client *http.Client
	logger *zap.Logger
}

// NewNotificationWorker constructs the worker and subscribes it to the
// dispatcher.
func NewNotificationWorker(cfg config.NotificationConfig, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationWorker {
	w := &NotificationWorker{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventDeletionRequested,
		events.EventDeletionDecided,
	} {
		dispatcher.Subscribe(eventType, w.handle)
	}
	return w
}

func (w *NotificationWorker) handle(ctx context.Context, event events.Event) error {
	w.logger.Info("notification",
		zap.String("event", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("email_from", w.cfg.EmailFrom))
	if w.cfg.WebhookURL != "" {
		w.postWebhook(ctx, event)
	}
	return nil
}

func (w *NotificationWorker) postWebhook(ctx context.Context, event events.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("webhook payload marshal failed", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("webhook request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed", zap.String("event", string(event.Type)), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook rejected",
			zap.String("event", string(event.Type)),
			zap.Int("status", resp.StatusCode))
	}
}
