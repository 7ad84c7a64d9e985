package main

import (
	"context"

	"growpilot/internal/adapters/export"
	"growpilot/internal/core"
)

// serviceAudit writes service audit entries to the process log.
type serviceAudit struct{ logger core.Logger }

func (a serviceAudit) Record(_ context.Context, e core.AuditEntry) {
	a.logger.Info("audit",
		"operation", e.Operation,
		"category", e.Category,
		"status", e.Status,
		"error", e.Error,
		"duration", e.Duration,
	)
}

// archiveAudit writes export archive attempts to the process log.
type archiveAudit struct{ logger core.Logger }

func (a archiveAudit) Record(_ context.Context, e export.AuditEntry) {
	a.logger.Info("export archived",
		"session", e.Session,
		"file", e.Filename,
		"key", e.Key,
		"status", e.Status,
		"error", e.Error,
	)
}
