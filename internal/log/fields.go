// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging, per §7 of the spec:
// every state change is logged with path, lang, task_id, queue, duration.
const (
	FieldPath      = "path"
	FieldLang      = "lang"
	FieldTaskID    = "task_id"
	FieldQueue     = "queue"
	FieldDuration  = "duration"
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPriority  = "priority"
	FieldOutcome   = "outcome"
	FieldAttempt   = "attempt"
)
