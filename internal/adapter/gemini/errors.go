package gemini

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"corpora/internal/ingest"
)

// classify maps quota exhaustion to the pipeline's retryable rate limit
// sentinel so the consumer backs off instead of failing the document.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code == http.StatusServiceUnavailable {
			return fmt.Errorf("%w: %s", ingest.ErrRateLimited, gerr.Message)
		}
	}
	return err
}
