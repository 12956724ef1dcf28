package containment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/alert"
	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/model"
)

// evaluation carries what every decision on one request records.
type evaluation struct {
	sc        *model.SessionSecurityContext
	channel   model.Channel
	eventType string
	category  model.EventCategory
	details   model.ViolationDetails
}

// outcome is a pipeline verdict before it is recorded.
type outcome struct {
	decision model.AccessDecision
	// severity overrides the violation type's default severity.
	severity model.Severity
	// logOnly audits a deny without raising a violation.
	logOnly bool
}

func allow(rule, reason string) outcome {
	return outcome{decision: model.Allow(rule, reason)}
}

func logged(rule, reason string) outcome {
	d := model.Allow(rule, reason)
	d.Action = model.ActionLogged
	return outcome{decision: d}
}

func deny(vt model.ViolationType, rule, reason string) outcome {
	d := model.Deny(rule, reason)
	d.ViolationType = vt
	return outcome{decision: d}
}

// constraint is a size or type denial. Policies may keep these out of the
// violation count.
func constraint(p *model.PodSecurityPolicy, vt model.ViolationType, rule, reason string) outcome {
	o := deny(vt, rule, reason)
	o.logOnly = p.ConstraintViolationsLogOnly
	return o
}

func needsApproval(rule, reason string) outcome {
	d := model.Deny(rule, reason)
	d.RequiresApproval = true
	return outcome{decision: d, logOnly: true}
}

func prompt(rule, reason string) outcome {
	d := model.Deny(rule, reason)
	d.RequiresPrompt = true
	return outcome{decision: d, logOnly: true}
}

// unknownMode fails closed on a policy value the evaluator does not handle.
func unknownMode(field string, value any) outcome {
	return outcome{
		decision: model.Deny("policy.unknown_mode", fmt.Sprintf("Unrecognised %s %q", field, value)),
		logOnly:  true,
	}
}

// conclude records the decision. A deny writes the violation and the audit
// event; when either write fails the deny is still returned, with an error,
// and an operational alert is raised. An allow whose audit write fails is
// turned into a deny.
func (e *Engine) conclude(ctx context.Context, ev *evaluation, o outcome) (model.AccessDecision, error) {
	d := o.decision
	sc := ev.sc

	metrics.Decisions.WithLabelValues(string(ev.channel), outcomeLabel(d)).Inc()
	if !d.Allowed {
		e.logger.Info("containment denied",
			zap.String("session_id", sc.SessionID),
			zap.String("tenant_id", sc.TenantID),
			zap.String("channel", string(ev.channel)),
			zap.String("rule", d.Rule),
			zap.String("reason", d.Reason))
	}

	details := ev.details
	details.Rule = d.Rule
	details.SensitiveDataTypes = d.SensitiveDataTypes

	var errs []error
	if !d.Allowed && !o.logOnly && d.ViolationType != "" {
		if err := e.raise(ctx, sc, d, o.severity, details); err != nil {
			errs = append(errs, err)
		}
	}

	event := &model.ContainmentEvent{
		ID:        uuid.NewString(),
		Timestamp: e.clock.Now(),
		SessionID: sc.SessionID,
		TenantID:  sc.TenantID,
		UserID:    sc.UserID,
		Channel:   ev.channel,
		EventType: ev.eventType,
		Category:  ev.category,
		Allowed:   d.Allowed,
		Action:    d.Action,
		Reason:    d.Reason,
		Rule:      d.Rule,
		SourceIP:  sc.SourceIP,
		Details:   details,
	}
	if !d.Allowed {
		event.ViolationType = d.ViolationType
	}
	if err := e.audit.AppendEvent(ctx, event); err != nil {
		metrics.AuditFailures.WithLabelValues("audit").Inc()
		errs = append(errs, fmt.Errorf("append containment event: %w", err))
	}

	if len(errs) == 0 {
		return d, nil
	}

	err := errors.Join(errs...)
	e.logger.Error("containment record failed",
		zap.String("session_id", sc.SessionID),
		zap.String("channel", string(ev.channel)),
		zap.String("rule", d.Rule),
		zap.Bool("allowed", d.Allowed),
		zap.Error(err))
	e.operationalAlert(ctx, sc, ev.channel, d, err)

	if d.Allowed {
		d = model.Deny("audit.unavailable", "Audit logging unavailable")
	}
	return d, fmt.Errorf("record %s decision: %w", ev.channel, err)
}

func (e *Engine) raise(ctx context.Context, sc *model.SessionSecurityContext, d model.AccessDecision, severity model.Severity, details model.ViolationDetails) error {
	if severity == "" {
		severity = model.SeverityFor(d.ViolationType)
	}
	v := &model.SecurityViolation{
		ID:          uuid.NewString(),
		SessionID:   sc.SessionID,
		TenantID:    sc.TenantID,
		Type:        d.ViolationType,
		Severity:    severity,
		Description: d.Reason,
		Details:     details,
		SourceIP:    sc.SourceIP,
		CreatedAt:   e.clock.Now(),
	}
	if err := e.violations.RecordViolation(ctx, v); err != nil {
		metrics.AuditFailures.WithLabelValues("violation").Inc()
		return fmt.Errorf("record violation: %w", err)
	}
	metrics.Violations.WithLabelValues(string(v.Type)).Inc()

	if sc.Policy != nil {
		if _, err := e.resolver.Update(ctx, sc.SessionID, func(c *model.SessionSecurityContext) {
			c.ViolationCount++
		}); err != nil {
			e.logger.Debug("violation count not cached",
				zap.String("session_id", sc.SessionID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) operationalAlert(ctx context.Context, sc *model.SessionSecurityContext, ch model.Channel, d model.AccessDecision, cause error) {
	e.publish(ctx, alert.Event{
		Topic:     alert.TopicOperations,
		Type:      alert.EventAuditWriteFailed,
		TenantID:  sc.TenantID,
		SessionID: sc.SessionID,
		UserID:    sc.UserID,
		Severity:  model.SeverityHigh,
		Reason:    cause.Error(),
		Data: map[string]string{
			"channel": string(ch),
			"rule":    d.Rule,
			"action":  string(d.Action),
		},
	})
}

// publish stamps and sends e. Failures are logged and never affect the
// decision.
func (e *Engine) publish(ctx context.Context, ev alert.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}
	if err := e.alerts.Publish(ctx, ev); err != nil {
		metrics.PublishFailures.WithLabelValues("engine").Inc()
		e.logger.Warn("alert publish failed",
			zap.String("type", ev.Type),
			zap.String("session_id", ev.SessionID),
			zap.Error(err))
	}
}

func outcomeLabel(d model.AccessDecision) string {
	switch {
	case d.RequiresApproval:
		return "approval_required"
	case d.RequiresPrompt:
		return "prompt"
	default:
		return strings.ToLower(string(d.Action))
	}
}
