package ingest

import (
	"context"
	"errors"
	"strings"

	"corpora/internal/text"
)

// ErrNoExtractableText means the document produced no usable text. Retrying
// will not help, but the failure still consumes an attempt like any other.
var ErrNoExtractableText = errors.New("extraction: no extractable text")

// ErrRateLimited marks provider throttling. Always retryable.
var ErrRateLimited = errors.New("provider rate limited")

type Fault int

const (
	// FaultRetryable covers transient failures: network, rate limits,
	// timeouts, unavailable collaborators.
	FaultRetryable Fault = iota
	// FaultFatal covers failures no retry can fix: malformed input,
	// unextractable documents, empty text.
	FaultFatal
)

// Classify maps a pipeline error to its retry disposition. Unknown errors are
// treated as retryable so a flaky collaborator gets its full attempt budget;
// the attempt ceiling still bounds the damage.
func Classify(err error) Fault {
	switch {
	case errors.Is(err, ErrNoExtractableText),
		errors.Is(err, text.ErrEmptyInput):
		return FaultFatal
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded):
		return FaultRetryable
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "malformed") || strings.Contains(msg, "invalid payload") {
		return FaultFatal
	}
	return FaultRetryable
}
