// Package core defines the fundamental types and errors for Valet.
package core

import "errors"

// Core errors that can occur across the system
var (
	// Resolution errors
	ErrMissingIdentification = errors.New("no identifying fields for email")
	ErrNoMatch               = errors.New("no email matched the criteria")
	ErrUnknownAccount        = errors.New("unknown email account")

	// Dispatch errors
	ErrMissingAction     = errors.New("missing_action")
	ErrUnsupportedAction = errors.New("unsupported_action")

	// Storage errors
	ErrRecordNotFound = errors.New("record not found")
	ErrCorruptRecord  = errors.New("corrupt record")

	// Configuration errors
	ErrMailboxNotConfigured  = errors.New("mailbox not configured")
	ErrNotifierNotConfigured = errors.New("notifier not configured")
	ErrNoOwnerContact        = errors.New("owner contact not configured")

	// Reasoning errors
	ErrReasonerUnavailable = errors.New("reasoning service unavailable")
)
