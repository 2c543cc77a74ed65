package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/types"
)

// Runner triggers a configuration run for a session in the execution
// environment. Implementations must be safe for concurrent use; callers
// invoke Trigger asynchronously and never block session creation on it.
type Runner interface {
	Trigger(ctx context.Context, session *types.Session) error
}

// HTTPRunner posts the session spec to an execution endpoint.
type HTTPRunner struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPRunner creates a runner targeting the given endpoint.
func NewHTTPRunner(endpoint string) *HTTPRunner {
	return &HTTPRunner{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   log.WithComponent("runner"),
	}
}

// Trigger submits the session for execution.
func (r *HTTPRunner) Trigger(ctx context.Context, session *types.Session) error {
	body, err := json.Marshal(session)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("triggering session %s: %w", session.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("triggering session %s: endpoint returned %s", session.Name, resp.Status)
	}
	r.logger.Debug().Str("session", session.Name).Msg("session triggered")
	return nil
}

// NopRunner is used when no execution environment is configured.
// Sessions stay pending until an external runner picks them up.
type NopRunner struct{}

// Trigger does nothing.
func (NopRunner) Trigger(ctx context.Context, session *types.Session) error {
	return nil
}
