package moveo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const latencyPath = "/api/prediction-latency"

// latencyData carries the raw timing of one prediction call.
type latencyData struct {
	StartTimeMs int64            `json:"start_time_ms"`
	EndTimeMs   int64            `json:"end_time_ms"`
	Status      PredictionStatus `json:"status"`
}

// latencyReport is the body of the latency endpoint.
type latencyReport struct {
	ModelID              string      `json:"model_id"`
	SessionID            string      `json:"session_id"`
	Client               string      `json:"client"`
	TotalExecutionTimeMs int64       `json:"total_execution_time_ms"`
	LatencyData          latencyData `json:"latency_data"`
}

// latencyReporter posts prediction timings in the background. Failures are
// logged and otherwise ignored.
type latencyReporter struct {
	client  *http.Client
	url     string
	token   string
	timeout time.Duration
	log     *diagLogger

	wg sync.WaitGroup
}

func newLatencyReporter(cfg Config, token string, log *diagLogger) *latencyReporter {
	return &latencyReporter{
		client:  cfg.HTTPClient,
		url:     cfg.Endpoint + latencyPath,
		token:   token,
		timeout: cfg.LatencyTimeout,
		log:     log,
	}
}

// report spawns the POST and returns immediately.
func (r *latencyReporter) report(modelID, sessionID string, start, end time.Time, status PredictionStatus) {
	rep := latencyReport{
		ModelID:              modelID,
		SessionID:            sessionID,
		Client:               ClientName,
		TotalExecutionTimeMs: end.Sub(start).Milliseconds(),
		LatencyData: latencyData{
			StartTimeMs: start.UnixMilli(),
			EndTimeMs:   end.UnixMilli(),
			Status:      status,
		},
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.send(ctx, rep); err != nil {
			r.log.get().Warn("failed to report prediction latency", "model_id", modelID, "error", err)
		}
	}()
}

// wait blocks until in-flight reports finish or ctx ends.
func (r *latencyReporter) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("moveo: waiting for latency reports: %w", ctx.Err())
	}
}

func (r *latencyReporter) send(ctx context.Context, rep latencyReport) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal latency report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
