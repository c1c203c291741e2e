package hostfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"vaultrouter/internal/routing"
)

// Envelope is one frame on the host runtime's event feed. The override is
// optional; absence means defaults (shares to the engine's own account, no
// forced vault, no minimum-shares floor).
type Envelope struct {
	Type         string            `json:"type"` // context_created | before_event | after_event
	Context      string            `json:"context"`
	ResourceType string            `json:"resource_type,omitempty"`
	Amount       decimal.Decimal   `json:"amount,omitempty"`
	Override     *routing.Override `json:"override,omitempty"`
}

// Stream consumes the host runtime's exchange-event feed and drives the
// engine's two-phase hooks. A dropped connection is retried with exponential
// backoff; a failed routing execution is logged and the stream keeps reading,
// since the engine leaves no partial state behind on failure.
type Stream struct {
	URL        string
	Engine     *routing.Engine
	Logger     *zap.Logger
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func (s *Stream) Run(ctx context.Context) error {
	if s == nil || s.Engine == nil {
		return nil
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("host feed url missing")
	}
	backoff := s.BackoffMin
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := s.BackoffMax
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.Logger != nil {
			s.Logger.Warn("host feed disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}()
	if s.Logger != nil {
		s.Logger.Info("host feed connected", zap.String("url", s.URL))
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if err := s.dispatch(ctx, data); err != nil && s.Logger != nil {
			s.Logger.Warn("host feed event failed", zap.Error(err))
		}
	}
}

func (s *Stream) dispatch(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	name := strings.TrimSpace(env.Context)
	if name == "" {
		return fmt.Errorf("envelope missing context")
	}
	switch strings.ToLower(strings.TrimSpace(env.Type)) {
	case "context_created":
		s.Engine.ContextCreated(name)
		return nil
	case "before_event":
		s.Engine.BeforeEvent(name)
		return nil
	case "after_event":
		if strings.TrimSpace(env.ResourceType) == "" {
			return fmt.Errorf("after_event missing resource_type")
		}
		ov := routing.Override{}
		if env.Override != nil {
			ov = *env.Override
		}
		_, err := s.Engine.AfterEvent(ctx, name, env.ResourceType, env.Amount, ov)
		return err
	}
	return fmt.Errorf("unknown envelope type: %q", env.Type)
}
