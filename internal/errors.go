package internal

import "fmt"

// FailureReason classifies why a unit of work failed. The zero value means
// success. Reasons end up in the manifest and in Stats, so tests and
// operators can tell failure classes apart without parsing log text.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonSidecarUnreadable FailureReason = "sidecar_unreadable" // sidecar JSON missing fields or unreadable
	ReasonHashFailed        FailureReason = "hash_failed"        // local file unreadable during hashing
	ReasonUploadTransport   FailureReason = "upload_transport"   // network failure or timeout
	ReasonUploadRejected    FailureReason = "upload_rejected"    // non-success status from the server
	ReasonInternal          FailureReason = "internal_error"     // panic caught at the unit boundary
)

// StatusError is returned by the client when the server answered with a
// non-success status that the retry policy does not cover.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed: status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}
