package auth

import (
	"github.com/getsentry/sentry-go"

	"wallet-auth/internal/observability"
)

type AuditSeverity string

const (
	AuditDebug AuditSeverity = "debug"
	AuditInfo  AuditSeverity = "info"
	AuditAlert AuditSeverity = "alert"
)

// AuditLogger receives security-relevant events from the protocol. Detail maps
// carry record ids and token hashes only; raw secrets never reach the sink.
type AuditLogger interface {
	Audit(severity AuditSeverity, operation, category string, detail map[string]any, userID string)
}

// LogAudit writes audit events to the structured logger. Alert-severity
// events are additionally reported to sentry.
type LogAudit struct {
	logger *observability.Logger
}

func NewLogAudit(logger *observability.Logger) *LogAudit {
	return &LogAudit{logger: logger}
}

func (a *LogAudit) Audit(severity AuditSeverity, operation, category string, detail map[string]any, userID string) {
	fields := map[string]any{
		"operation": operation,
		"category":  category,
	}
	for key, value := range detail {
		fields[key] = value
	}
	if userID != "" {
		fields["user_id"] = userID
	}

	switch severity {
	case AuditDebug:
		a.logger.Debug("audit_"+operation, fields)
	case AuditAlert:
		a.logger.Error("audit_"+operation, fields)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("operation", operation)
			scope.SetExtra("category", category)
			for key, value := range detail {
				scope.SetExtra(key, value)
			}
			sentry.CaptureMessage("audit alert: " + operation)
		})
	default:
		a.logger.Info("audit_"+operation, fields)
	}
}

// NopAudit discards every event. Used where no sink is wired.
type NopAudit struct{}

func (NopAudit) Audit(AuditSeverity, string, string, map[string]any, string) {}
