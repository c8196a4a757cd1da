// Package composer implements the ephemeral send form: open renders the
// order document and pre-fills the form, submit uploads the document and
// delivers the text message.
package composer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"ordernotify/internal/dispatch"
	"ordernotify/internal/domain"
	"ordernotify/internal/message"
)

type Composer struct {
	renderer    domain.DocumentRenderer
	attachments domain.AttachmentStore
	dispatcher  *dispatch.Dispatcher
	templates   message.Templates
	logger      *slog.Logger
}

type Config struct {
	Renderer    domain.DocumentRenderer
	Attachments domain.AttachmentStore
	Dispatcher  *dispatch.Dispatcher
	Templates   message.Templates
	Logger      *slog.Logger
}

func New(cfg Config) *Composer {
	return &Composer{
		renderer:    cfg.Renderer,
		attachments: cfg.Attachments,
		dispatcher:  cfg.Dispatcher,
		templates:   cfg.Templates,
		logger:      cfg.Logger,
	}
}

// Open renders the order's summary document to PDF, stores it as an
// attachment, and returns the pre-filled form. Renderer and store failures
// propagate unchanged.
func (c *Composer) Open(ctx context.Context, order domain.OrderRef) (domain.ComposerForm, error) {
	pdf, err := c.renderer.RenderOrderPDF(ctx, order)
	if err != nil {
		return domain.ComposerForm{}, fmt.Errorf("render order document: %w", err)
	}

	att, err := c.attachments.CreateAttachment(ctx, domain.Attachment{
		OrderName: order.Name,
		Name:      order.Name + ".pdf",
		MimeType:  "application/pdf",
		Content:   base64.StdEncoding.EncodeToString(pdf),
	})
	if err != nil {
		return domain.ComposerForm{}, fmt.Errorf("store attachment: %w", err)
	}

	c.logger.Info("composer opened", "order", order.Name, "attachment", att.ID)

	return domain.ComposerForm{
		Order:         order,
		Phone:         order.ContactPhone(),
		Message:       c.templates.ComposerDefaultText(order.Name),
		AttachmentIDs: []string{att.ID},
	}, nil
}

// Submit uploads the form's document (first attachment only, if any) and
// then delivers the text message. An upload failure aborts the flow: the
// text send is not attempted.
func (c *Composer) Submit(ctx context.Context, form domain.ComposerForm) error {
	if len(form.AttachmentIDs) > 0 {
		// One document per submission; extra attachments are ignored.
		att, err := c.attachments.GetAttachment(ctx, form.AttachmentIDs[0])
		if err != nil {
			return fmt.Errorf("load attachment %s: %w", form.AttachmentIDs[0], err)
		}
		if att == nil {
			return fmt.Errorf("attachment not found: %s", form.AttachmentIDs[0])
		}
		if err := c.dispatcher.UploadDocument(ctx, form.Order, *att); err != nil {
			return err
		}
	}

	return c.dispatcher.SendText(ctx, form.Order, form.Phone, form.Message)
}
