// Package render produces the order summary PDF through headless Chrome.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"ordernotify/internal/domain"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const renderTimeout = 30 * time.Second

// ChromeRenderer implements domain.DocumentRenderer using chromedp's
// print-to-PDF. Each render spawns a short-lived headless Chrome instance.
type ChromeRenderer struct {
	logger *slog.Logger
}

func NewChromeRenderer(logger *slog.Logger) *ChromeRenderer {
	return &ChromeRenderer{logger: logger}
}

func (r *ChromeRenderer) RenderOrderPDF(ctx context.Context, order domain.OrderRef) ([]byte, error) {
	html, err := BuildOrderHTML(order)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	r.logger.Info("rendering order document", "order", order.Name)

	var pdf []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html,"+url.PathEscape(html)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}

	r.logger.Info("order document rendered", "order", order.Name, "bytes", len(pdf))
	return pdf, nil
}
