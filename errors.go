package updater

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrDownloadCanceled is returned when a running download was interrupted
	// on user request. It marks a clean abort, not a failure.
	ErrDownloadCanceled = errors.New("download canceled")

	// ErrShutdownInProgress must be returned by a Host when an installer
	// handoff is requested while the application is already shutting down.
	ErrShutdownInProgress = errors.New("application shutdown already in progress")

	// ErrAllMirrorsFailed is the cause of a download error when every mirror
	// from the update descriptor was tried and none delivered a valid
	// artifact.
	ErrAllMirrorsFailed = errors.New("all download mirrors failed")
)

// ProtocolError means the update endpoint replied with something the engine
// cannot use: a non-OK status code, a line that does not follow the
// "Key: Value" format, or a response without the required keys.
type ProtocolError struct {
	StatusCode  int
	MissingKeys []string
	Reason      string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("update server returned HTTP %d", e.StatusCode)
	}
	if len(e.MissingKeys) > 0 {
		return fmt.Sprintf("update response misses required keys: %s", strings.Join(e.MissingKeys, ", "))
	}
	return e.Reason
}

func newStatusCodeError(statusCode int) error {
	return &ProtocolError{StatusCode: statusCode}
}

func newMalformedLineError(line string) error {
	return &ProtocolError{Reason: fmt.Sprintf("malformed line in update response: %q", line)}
}

func newMissingKeysError(keys []string) error {
	return &ProtocolError{MissingKeys: keys}
}

// IntegrityError means a downloaded artifact does not match what the update
// descriptor promised, either in size or in content hash.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return e.Reason
}

func newContentTooShortError(read, expected int64) error {
	return &IntegrityError{Reason: fmt.Sprintf("content too short: got %d of %d bytes", read, expected)}
}

func newHashMismatchError(actual, expected string) error {
	return &IntegrityError{Reason: fmt.Sprintf("content has incorrect file hash: got %s, expected %s", actual, expected)}
}

// IsProtocolError reports whether err or its cause is a ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := errors.Cause(err).(*ProtocolError)
	return ok
}

// IsIntegrityError reports whether err or its cause is an IntegrityError.
func IsIntegrityError(err error) bool {
	_, ok := errors.Cause(err).(*IntegrityError)
	return ok
}
