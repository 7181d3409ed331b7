// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package translator is the in-process façade over the remote translation
// HTTP service (spec.md §4.2, §6 "Translator HTTP").
package translator

import "errors"

// Error kinds the client distinguishes to callers, per spec.md §4.2/§7.
var (
	// ErrTransient covers socket errors, timeouts, and idempotent retryable
	// HTTP statuses. Retried internally with exponential backoff; once the
	// attempt cap is exceeded it is still propagated as ErrTransient.
	ErrTransient = errors.New("translator: transient failure")

	// ErrPermanent covers 4xx responses other than auth/rate-limit,
	// malformed bodies, and unsupported-language requests. Never retried.
	ErrPermanent = errors.New("translator: permanent failure")

	// ErrUnavailable names the service-down condition. No Client method
	// returns it: a failed health probe shows as IsAvailable() == false, and
	// callers use WaitUntilAvailable to block until the service recovers.
	ErrUnavailable = errors.New("translator: service unavailable")

	// ErrLanguageUnsupported names the unsupported-language condition. No
	// Client method returns it: TranslateFile does not check the cached
	// supported-language set, and a pair the service rejects with a 4xx
	// status surfaces as ErrPermanent.
	ErrLanguageUnsupported = errors.New("translator: language not supported")
)
