package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"ordernotify/internal/domain"
	"ordernotify/internal/metrics"
)

const (
	textTimeout   = 10 * time.Second
	uploadTimeout = 15 * time.Second
)

// Dispatcher performs the two outbound delivery calls: a text message to the
// WAHA messaging endpoint and a document upload to the external API. Settings
// are resolved fresh on every call; there is no retry logic, a failed send
// requires a manual resend.
type Dispatcher struct {
	settings domain.SettingsStore
	audit    domain.AuditTrail
	logger   *slog.Logger

	textClient   *http.Client
	uploadClient *http.Client
}

type Config struct {
	Settings domain.SettingsStore
	Audit    domain.AuditTrail
	Logger   *slog.Logger
}

func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		settings:     cfg.Settings,
		audit:        cfg.Audit,
		logger:       cfg.Logger,
		textClient:   &http.Client{Timeout: textTimeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
	}
}

// SendText delivers a text message to the customer's WhatsApp account.
// An empty phone is a logged no-op, not an error. On success exactly one
// audit entry is appended; on failure none is.
func (d *Dispatcher) SendText(ctx context.Context, order domain.OrderRef, phone, message string) error {
	if phone == "" {
		d.logger.Warn("skipping text send: no phone number", "order", order.Name)
		metrics.TextsSkipped.Inc()
		return nil
	}

	endpoints, err := ResolveEndpoints(ctx, d.settings)
	if err != nil {
		return err
	}

	chatID := NormalizePhone(phone)

	payload, err := json.Marshal(map[string]string{
		"chatId": chatID,
		"text":   message,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	d.logger.Info("sending text message", "order", order.Name, "chat", chatID)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoints.MessagingURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.textClient.Do(req)
	if err != nil {
		metrics.TextsFailed.Inc()
		d.logger.Error("text delivery failed", "order", order.Name, "err", err)
		return &domain.DeliveryError{Op: "text", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.TextsFailed.Inc()
		d.logger.Error("text delivery failed",
			"order", order.Name,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return &domain.DeliveryError{Op: "text", Err: fmt.Errorf("messaging API %d: %s", resp.StatusCode, string(respBody))}
	}

	d.appendAudit(ctx, order.Name, "text_sent",
		fmt.Sprintf("Message sent by WhatsApp to %s:\n%s", phone, message))
	metrics.TextsSent.Inc()
	d.logger.Info("text message delivered", "order", order.Name, "chat", chatID)
	return nil
}

// UploadDocument posts one attachment to the external upload API as a
// multipart form, authenticated with the bearer token from settings.
func (d *Dispatcher) UploadDocument(ctx context.Context, order domain.OrderRef, att domain.Attachment) error {
	endpoints, err := ResolveEndpoints(ctx, d.settings)
	if err != nil {
		return err
	}

	content, err := base64.StdEncoding.DecodeString(att.Content)
	if err != nil {
		return fmt.Errorf("decode attachment %s: %w", att.Name, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("order_name", order.Name); err != nil {
		return fmt.Errorf("write form field: %w", err)
	}
	part, err := createFilePart(writer, att.Name, att.MimeType)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize form: %w", err)
	}

	d.logger.Info("uploading document", "order", order.Name, "file", att.Name)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoints.UploadURL, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+endpoints.UploadToken)

	resp, err := d.uploadClient.Do(req)
	if err != nil {
		metrics.UploadsFailed.Inc()
		d.logger.Error("document upload failed", "order", order.Name, "file", att.Name, "err", err)
		return &domain.DeliveryError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.UploadsFailed.Inc()
		d.logger.Error("document upload failed",
			"order", order.Name,
			"file", att.Name,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return &domain.DeliveryError{Op: "upload", Err: fmt.Errorf("upload API %d: %s", resp.StatusCode, string(respBody))}
	}

	d.appendAudit(ctx, order.Name, "document_uploaded",
		fmt.Sprintf("Document '%s' sent to the external API.", att.Name))
	metrics.UploadsSent.Inc()
	d.logger.Info("document uploaded", "order", order.Name, "file", att.Name)
	return nil
}

// The audit trail is fire-and-forget from the dispatcher's point of view:
// append failures are logged, never propagated.
func (d *Dispatcher) appendAudit(ctx context.Context, orderName, action, body string) {
	if err := d.audit.Append(ctx, orderName, action, body); err != nil {
		d.logger.Error("audit append failed", "order", orderName, "action", action, "err", err)
	}
}

// createFilePart adds the file field with the attachment's real MIME type.
// multipart.Writer.CreateFormFile hardcodes application/octet-stream, so the
// header is built by hand.
func createFilePart(w *multipart.Writer, filename, mimeType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", mimeType)
	return w.CreatePart(h)
}
