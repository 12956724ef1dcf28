// Package scan classifies content against a catalog of sensitive-data
// patterns (PII, financial, credentials, health, network).
package scan

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/model"
)

// ContentScanner inspects content for sensitive data. Production deployments
// may replace the built-in regex Scanner with an external DLP engine.
type ContentScanner interface {
	Scan(ctx context.Context, content []byte) (model.ScanResult, error)
}

// Scanner runs an ordered pattern catalog over content. The catalog is
// swapped atomically on Reload; a scan always sees one consistent catalog.
type Scanner struct {
	patterns atomic.Pointer[[]Pattern]
}

// New creates a Scanner with the default catalog followed by extra patterns.
func New(extra ...Pattern) *Scanner {
	s := &Scanner{}
	s.Reload(extra)
	return s
}

// Reload replaces the operator-defined patterns. The default catalog always
// runs first.
func (s *Scanner) Reload(extra []Pattern) {
	all := DefaultCatalog()
	all = append(all, extra...)
	s.patterns.Store(&all)
}

// Patterns returns the active catalog.
func (s *Scanner) Patterns() []Pattern {
	return *s.patterns.Load()
}

// Scan runs every pattern over content and counts matches per pattern.
// Cancelling ctx aborts the scan between patterns.
func (s *Scanner) Scan(ctx context.Context, content []byte) (model.ScanResult, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues("sensitive").Observe(time.Since(start).Seconds())
	}()

	result := model.ScanResult{Patterns: []model.SensitiveFinding{}}
	if len(content) == 0 {
		metrics.Scans.WithLabelValues("sensitive", "clean").Inc()
		return result, nil
	}

	text := string(content)
	var lower string

	for _, p := range s.Patterns() {
		if err := ctx.Err(); err != nil {
			metrics.Scans.WithLabelValues("sensitive", "error").Inc()
			return model.ScanResult{}, fmt.Errorf("sensitive data scan aborted at %s: %w", p.Name, err)
		}

		if len(p.Context) > 0 {
			if lower == "" {
				lower = strings.ToLower(text)
			}
			if !containsAny(lower, p.Context) {
				continue
			}
		}

		count := 0
		for _, m := range p.Regex.FindAllString(text, -1) {
			if p.Validate != nil && !p.Validate(m) {
				continue
			}
			count++
		}
		if count == 0 {
			continue
		}

		result.Patterns = append(result.Patterns, model.SensitiveFinding{
			Name:     p.Name,
			Category: p.Category,
			Severity: p.Severity,
			Count:    count,
		})
	}

	result.Found = len(result.Patterns) > 0
	if result.Found {
		metrics.Scans.WithLabelValues("sensitive", "hit").Inc()
	} else {
		metrics.Scans.WithLabelValues("sensitive", "clean").Inc()
	}
	return result, nil
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
