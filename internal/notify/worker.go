package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

type DeliverJobArgs struct {
	UserID    uuid.UUID       `json:"user_id"`
	EventKind string          `json:"event_kind"`
	Payload   json.RawMessage `json:"payload"`
}

func (DeliverJobArgs) Kind() string { return "deliver_notification" }

// DeliverWorker posts queued notifications to the notification gateway.
type DeliverWorker struct {
	river.WorkerDefaults[DeliverJobArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewDeliverWorker(webhookURL string, log *slog.Logger) *DeliverWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DeliverWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverJobArgs]) error {
	args := job.Args

	body, err := json.Marshal(map[string]any{
		"user_id":    args.UserID,
		"event_kind": args.EventKind,
		"payload":    args.Payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		// River retries with backoff; the state transition that emitted the
		// event already committed and is unaffected.
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned %d", resp.StatusCode)
	}

	w.log.Info("notification delivered", "user_id", args.UserID, "event_kind", args.EventKind)
	return nil
}
