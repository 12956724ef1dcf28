package containment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/model"
	"github.com/ppiankov/podguard/internal/policy"
)

const scanFailedReason = "Content scan failed"

// bounded runs fn under timeout. The caller gets control back when the
// deadline passes even if fn does not return.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("scan timed out: %w", ctx.Err())
	}
}

// dlpConfig returns the tenant's inspection limits. On failure the returned
// outcome denies.
func (e *Engine) dlpConfig(ctx context.Context, sc *model.SessionSecurityContext, prefix string) (policy.DLPConfig, *outcome, error) {
	cfg, err := e.dlp.DLPConfig(ctx, sc.TenantID)
	if err != nil {
		o := deny(model.ViolationScannerUnavailable, prefix+".scan_failed", scanFailedReason)
		o.logOnly = true
		return policy.DLPConfig{}, &o, fmt.Errorf("load DLP config for tenant %q: %w", sc.TenantID, err)
	}
	return cfg, nil, nil
}

// oversized reports whether content is above the scanning cap. With
// BlockUnscannable set the returned outcome denies; otherwise inspection is
// skipped.
func (e *Engine) oversized(sc *model.SessionSecurityContext, cfg policy.DLPConfig, prefix string, size int64) (bool, *outcome) {
	if cfg.MaxFileSizeForScanning <= 0 || size <= cfg.MaxFileSizeForScanning {
		return false, nil
	}
	if cfg.BlockUnscannable {
		o := constraint(sc.Policy, model.ViolationScannerUnavailable, prefix+".unscannable",
			fmt.Sprintf("Content exceeds maximum size for scanning of %d bytes", cfg.MaxFileSizeForScanning))
		return true, &o
	}
	e.logger.Debug("content inspection skipped",
		zap.String("session_id", sc.SessionID),
		zap.Int64("size", size),
		zap.Int64("max_file_size_for_scanning", cfg.MaxFileSizeForScanning))
	return true, nil
}

// inspectSensitive scans content and denies when any finding is at or above
// min. A nil outcome passes.
func (e *Engine) inspectSensitive(ctx context.Context, sc *model.SessionSecurityContext, prefix string, content []byte, min model.Severity) (*outcome, error) {
	cfg, o, err := e.dlpConfig(ctx, sc, prefix)
	if o != nil {
		return o, err
	}
	if skip, o := e.oversized(sc, cfg, prefix, int64(len(content))); skip {
		return o, nil
	}

	result, err := bounded(ctx, cfg.ScanTimeout, func(ctx context.Context) (model.ScanResult, error) {
		return e.scanner.Scan(ctx, content)
	})
	if err != nil {
		e.logger.Warn("sensitive data scan failed",
			zap.String("session_id", sc.SessionID), zap.Error(err))
		o := deny(model.ViolationScannerUnavailable, prefix+".scan_failed", scanFailedReason)
		return &o, nil
	}

	findings := result.AtOrAbove(min)
	if len(findings) == 0 {
		return nil, nil
	}
	cats := model.CategoriesOf(findings)
	hit := deny(model.ViolationSensitiveData, prefix+".sensitive_data",
		"Sensitive data detected: "+strings.Join(cats, ", "))
	hit.decision.SensitiveDataTypes = cats
	hit.severity = model.ScanResult{Patterns: findings}.HighestSeverity()
	return &hit, nil
}

// inspectMalware scans an inbound file. A hit quarantines the transfer.
func (e *Engine) inspectMalware(ctx context.Context, ev *evaluation, prefix string, content []byte, fileName string) (*outcome, error) {
	sc := ev.sc
	cfg, o, err := e.dlpConfig(ctx, sc, prefix)
	if o != nil {
		return o, err
	}
	if skip, o := e.oversized(sc, cfg, prefix, int64(len(content))); skip {
		return o, nil
	}

	result, err := bounded(ctx, cfg.ScanTimeout, func(ctx context.Context) (model.MalwareScanResult, error) {
		return e.malware.Scan(ctx, content, fileName)
	})
	if err != nil {
		e.logger.Warn("malware scan failed",
			zap.String("session_id", sc.SessionID), zap.Error(err))
		o := deny(model.ViolationScannerUnavailable, prefix+".scan_failed", scanFailedReason)
		return &o, nil
	}
	if result.Clean {
		return nil, nil
	}

	if ev.details.File != nil {
		ev.details.File.ThreatName = result.ThreatName
	}
	hit := deny(model.ViolationMalware, prefix+".malware", "Malware detected: "+result.ThreatName)
	hit.decision.Action = model.ActionQuarantined
	return &hit, nil
}
