package containment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/podguard/internal/audit"
	"github.com/ppiankov/podguard/internal/model"
)

// GenerateWatermarkConfig renders the session's watermark. The text joins
// the policy's fixed text with the identity fields it asks for.
func (e *Engine) GenerateWatermarkConfig(ctx context.Context, sessionID string) (model.WatermarkConfig, error) {
	sc, err := e.resolver.Context(ctx, sessionID)
	if err != nil {
		return model.WatermarkConfig{}, err
	}
	w := sc.Policy.Watermark
	if !w.Enabled {
		return model.WatermarkConfig{Enabled: false}, nil
	}

	var parts []string
	if w.Text != "" {
		parts = append(parts, w.Text)
	}
	if w.IncludeUserID && sc.UserID != "" {
		parts = append(parts, sc.UserID)
	}
	if w.IncludeSessionID {
		parts = append(parts, sc.SessionID)
	}
	if w.IncludeTimestamp {
		parts = append(parts, e.clock.Now().UTC().Format(time.RFC3339))
	}
	if w.IncludeSourceIP && sc.SourceIP != "" {
		parts = append(parts, sc.SourceIP)
	}

	return model.WatermarkConfig{
		Enabled:  true,
		Text:     strings.Join(parts, " | "),
		Opacity:  w.Opacity,
		Position: w.Position,
		FontSize: w.FontSize,
		Color:    w.Color,
	}, nil
}

// ScanForSensitiveData runs the sensitive-data scanner over content.
func (e *Engine) ScanForSensitiveData(ctx context.Context, content []byte) (model.ScanResult, error) {
	return e.scanner.Scan(ctx, content)
}

// ScanForMalware runs the malware scanner over data.
func (e *Engine) ScanForMalware(ctx context.Context, data []byte, fileName string) (model.MalwareScanResult, error) {
	return e.malware.Scan(ctx, data, fileName)
}

// HashContent returns the audit fingerprint of data.
func (e *Engine) HashContent(data []byte) string {
	return e.hasher.Sum(data)
}

// GetTransferAttempts returns one page of a session's transfer attempts,
// newest first.
func (e *Engine) GetTransferAttempts(ctx context.Context, sessionID string, f model.AttemptFilter) (model.AttemptPage, error) {
	if sessionID == "" {
		return model.AttemptPage{}, fmt.Errorf("session id is required")
	}
	return e.audit.Attempts(ctx, sessionID, audit.NormalizeFilter(f))
}

// RegisterSession records a session started by the gateway and drops any
// stale cached context for it.
func (e *Engine) RegisterSession(ctx context.Context, s *model.Session) error {
	if e.sessions == nil {
		return fmt.Errorf("session registration is not configured")
	}
	if err := e.sessions.Register(ctx, s); err != nil {
		return err
	}
	return e.resolver.Invalidate(ctx, s.ID)
}

// EndSession ends a session; later checks for it are denied.
func (e *Engine) EndSession(ctx context.Context, id string) error {
	if e.sessions == nil {
		return fmt.Errorf("session registration is not configured")
	}
	if err := e.sessions.End(ctx, id); err != nil {
		return err
	}
	if e.limiter != nil {
		e.limiter.Forget(id)
	}
	return e.resolver.Invalidate(ctx, id)
}
