package pagefile

import "errors"

// Public error taxonomy for the page file store. These are returned as-is or
// wrapped with fmt.Errorf("...: %w", ...) so callers can still match them with
// errors.Is.
var (
	ErrFileNotFound        = errors.New("pagefile: file not found")
	ErrHandleNotInit       = errors.New("pagefile: handle not initialized")
	ErrWriteFailed         = errors.New("pagefile: write failed")
	ErrReadNonExistingPage = errors.New("pagefile: read of non-existing page")
)
