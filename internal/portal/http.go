package portal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// response is the part of an HTTP exchange the portal client inspects.
type response struct {
	Status      int
	ContentType string
	Body        []byte
}

// send performs req with a correlated req_id in the logs and returns the full
// body. Non-2xx statuses are returned as errors together with the response.
func send(ctx context.Context, client *http.Client, req *http.Request, event string, logger *slog.Logger) (response, error) {
	reqID := uuid.New().String()
	start := time.Now()
	req = req.WithContext(ctx)

	logger.Debug(event+".request",
		"req_id", reqID,
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error(event+".send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return response{}, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn(event+".response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error(event+".read_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return response{Status: resp.StatusCode}, fmt.Errorf("read body: %w", err)
	}

	out := response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        raw,
	}
	logger.Info(event+".response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return out, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return out, nil
}
