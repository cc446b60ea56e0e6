package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/cache"
)

// Notifier posts alerts to an operator webhook, at most once per alert
// (type, subject, level) per cooldown.
type Notifier struct {
	url      string
	cooldown time.Duration
	cache    cache.Cache
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

func NewNotifier(url string, cooldown time.Duration, c cache.Cache, logger *slog.Logger) *Notifier {
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &Notifier{
		url:      url,
		cooldown: cooldown,
		cache:    c,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		now:      time.Now,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

func cooldownKey(a Alert) string {
	return fmt.Sprintf("monitor:alert:%s:%s:%s", a.Type, a.Subject, a.Level)
}

// Notify sends every alert not in cooldown and returns how many were sent.
func (n *Notifier) Notify(ctx context.Context, alerts []Alert) (int, error) {
	if !n.Enabled() {
		return 0, nil
	}

	var sent int
	var failed []error
	for _, a := range alerts {
		acquired, err := n.cache.SetNX(ctx, cooldownKey(a), []byte(n.now().UTC().Format(time.RFC3339)), n.cooldown)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		if !acquired {
			n.logger.Debug("alert in cooldown", slog.String("type", string(a.Type)), slog.String("subject", a.Subject))
			continue
		}

		if err := n.post(ctx, a); err != nil {
			// Free the slot so the next tick tries again.
			_ = n.cache.Delete(ctx, cooldownKey(a))
			n.logger.Error("failed to send alert notification",
				slog.String("type", string(a.Type)),
				slog.String("error", err.Error()),
			)
			failed = append(failed, err)
			continue
		}
		sent++
		n.logger.Info("alert notification sent",
			slog.String("type", string(a.Type)),
			slog.String("level", string(a.Level)),
			slog.String("subject", a.Subject),
		)
	}

	if len(failed) > 0 {
		return sent, fmt.Errorf("failed to send %d/%d alert notifications", len(failed), len(alerts))
	}
	return sent, nil
}

func (n *Notifier) post(ctx context.Context, a Alert) error {
	body, err := json.Marshal(map[string]any{
		"type":         "alert.triggered",
		"alert":        a,
		"triggered_at": n.now().UTC(),
		"source":       "carinho-integracoes",
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
