package domain

import (
	"fmt"
	"strings"
)

// SettingsMissingError reports delivery settings that are absent or empty.
// It is a precondition failure: nothing was sent and retrying will not help
// until an operator configures the missing keys.
type SettingsMissingError struct {
	Keys []string
}

func (e *SettingsMissingError) Error() string {
	return fmt.Sprintf("delivery settings not configured: %s (set them with 'ordernotify settings set <key> <value>')",
		strings.Join(e.Keys, ", "))
}

// DeliveryError wraps a transport or HTTP failure on an outbound call.
// The wrapped detail is for logs only; end users get UserMessage.
type DeliveryError struct {
	Op  string // "text" or "upload"
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// UserMessage is the generic failure text surfaced to end users.
// Transport detail is intentionally hidden from them.
func (e *DeliveryError) UserMessage() string {
	if e.Op == "upload" {
		return "Failed to upload the document to the external server. Check the logs."
	}
	return "Failed to send the message. Check the logs and the delivery settings."
}
