// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	taskIDKey ctxKey = "task_id"
	pathKey   ctxKey = "path"
	langKey   ctxKey = "lang"
)

// ContextWithTaskID stores the provided task/attempt ID in the context.
func ContextWithTaskID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// ContextWithPath stores the provided source path in the context.
func ContextWithPath(ctx context.Context, path string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, pathKey, path)
}

// ContextWithLang stores the target language in the context.
func ContextWithLang(ctx context.Context, lang string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, langKey, lang)
}

// TaskIDFromContext extracts the task ID from context if present.
func TaskIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, taskIDKey)
}

// PathFromContext extracts the source path from context if present.
func PathFromContext(ctx context.Context) string {
	return stringFromContext(ctx, pathKey)
}

// LangFromContext extracts the target language from context if present.
func LangFromContext(ctx context.Context) string {
	return stringFromContext(ctx, langKey)
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if tid := TaskIDFromContext(ctx); tid != "" {
		builder = builder.Str(FieldTaskID, tid)
		added = true
	}
	if p := PathFromContext(ctx); p != "" {
		builder = builder.Str(FieldPath, p)
		added = true
	}
	if l := LangFromContext(ctx); l != "" {
		builder = builder.Str(FieldLang, l)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// FromContext returns a component-tagged logger enriched with context fields.
func FromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
