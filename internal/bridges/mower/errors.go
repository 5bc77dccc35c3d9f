package mower

import "errors"

// Domain errors for the mower bridge package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnect is returned for transport-level connection failures.
	// The link retries these with backoff.
	ErrConnect = errors.New("mower: connection failed")

	// ErrAuth is returned when a broker rejects the credentials.
	// It is fatal: the bridge stops rather than retry bad credentials.
	ErrAuth = errors.New("mower: authentication rejected")

	// ErrMalformedPayload is returned when an inbound status message is not
	// a JSON object. The message is dropped.
	ErrMalformedPayload = errors.New("mower: malformed status payload")

	// ErrMalformedCommand is returned when an inbound command is not valid JSON.
	ErrMalformedCommand = errors.New("mower: malformed command payload")

	// ErrPublish is returned when a publish is attempted on a disconnected
	// link or the transport rejects it. The message is dropped, never queued.
	ErrPublish = errors.New("mower: publish failed")

	// ErrShuttingDown is returned for publishes attempted after shutdown began.
	ErrShuttingDown = errors.New("mower: shutting down")

	// ErrInvalidTopic is returned when a topic does not match the expected layout.
	ErrInvalidTopic = errors.New("mower: invalid topic")

	// ErrUnknownBrand is returned for a brand prefix not in the brand table.
	ErrUnknownBrand = errors.New("mower: unknown brand")
)
