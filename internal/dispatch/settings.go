package dispatch

import (
	"context"
	"fmt"

	"ordernotify/internal/domain"
)

// Settings keys read from the runtime settings store on every send.
const (
	KeyWahaBaseURL   = "waha.base_url"
	KeyWahaSessionID = "waha.session_id"
	KeyUploadURL     = "workwise.api.url"
	KeyUploadToken   = "workwise.api.token"
)

// RequiredKeys lists every setting the dispatcher needs, in display order.
var RequiredKeys = []string{KeyWahaBaseURL, KeyWahaSessionID, KeyUploadURL, KeyUploadToken}

// Endpoints is the resolved delivery configuration for one send.
type Endpoints struct {
	MessagingURL string // {base_url}/{session_id}/messages/text
	UploadURL    string
	UploadToken  string
}

// ResolveEndpoints reads the four delivery settings and joins the messaging
// endpoint. It fails with a SettingsMissingError naming every absent key;
// callers must not attempt any network call first.
func ResolveEndpoints(ctx context.Context, settings domain.SettingsStore) (Endpoints, error) {
	values := make(map[string]string, len(RequiredKeys))
	var missing []string
	for _, key := range RequiredKeys {
		val, err := settings.Get(ctx, key)
		if err != nil {
			return Endpoints{}, fmt.Errorf("read setting %s: %w", key, err)
		}
		if val == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = val
	}
	if len(missing) > 0 {
		return Endpoints{}, &domain.SettingsMissingError{Keys: missing}
	}

	return Endpoints{
		MessagingURL: fmt.Sprintf("%s/%s/messages/text", values[KeyWahaBaseURL], values[KeyWahaSessionID]),
		UploadURL:    values[KeyUploadURL],
		UploadToken:  values[KeyUploadToken],
	}, nil
}
