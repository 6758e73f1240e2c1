package slr

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Notifier delivers deferred location reports to caller-supplied callback
// URLs. The target is untrusted and arbitrary, so every delivery runs in
// its own goroutine with a bounded timeout and never blocks the dialog
// processing path. The callback's HTTP status is observed and logged only.
type Notifier struct {
	registry *Registry
	client   *http.Client
	logger   *slog.Logger
}

// NewNotifier creates a notifier with the given delivery timeout.
func NewNotifier(registry *Registry, timeout time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "slr_notifier"),
	}
}

// Deliver resolves the registration and, if it is still live, issues an
// HTTP request of the given method to its callback URL carrying the stored
// parameters plus extra. Unknown or cancelled registrations are a no-op.
func (n *Notifier) Deliver(method string, registrationID int64, extra map[string]string) {
	reg, url, ok := n.registry.Lookup(registrationID)
	if !ok {
		n.logger.Debug("delivery for unknown or cancelled registration dropped",
			"registration_id", registrationID,
		)
		return
	}

	body := encodeParams(reg.Parameters, extra)

	go n.send(method, url, body, registrationID)
}

func (n *Notifier) send(method, url, body string, registrationID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		n.logger.Error("building callback request failed",
			"registration_id", registrationID,
			"url", url,
			"error", err,
		)
		return
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("callback delivery failed",
			"registration_id", registrationID,
			"url", url,
			"error", err,
		)
		return
	}
	defer resp.Body.Close()

	n.logger.Info("callback delivered",
		"registration_id", registrationID,
		"url", url,
		"status", resp.StatusCode,
	)
}

// encodeParams merges stored and extra parameters into k=v lines with a
// deterministic key order. Extra values win on key collision.
func encodeParams(stored, extra map[string]string) string {
	merged := make(map[string]string, len(stored)+len(extra))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(merged[k])
		b.WriteByte('\n')
	}
	return b.String()
}
