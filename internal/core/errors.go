package core

import "errors"

var (
	// ErrAuth covers missing, invalid or expired credentials and failed step-up secrets.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound is returned when no subject record matches.
	ErrNotFound = errors.New("record not found")
	// ErrUpstream wraps reasoning, embedding and record store transport failures.
	ErrUpstream = errors.New("upstream unavailable")
	// ErrIngestion covers unsupported formats, empty text and embedding failures.
	ErrIngestion = errors.New("ingestion failed")
	// ErrEmptyMessage is returned for chat requests without content.
	ErrEmptyMessage = errors.New("message is required")
)
