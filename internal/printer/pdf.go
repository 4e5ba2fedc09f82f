// Package printer renders printable month sheets and turns them into PDF
// with a headless Chromium.
package printer

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"roomcal/internal/log"
)

const DefaultTimeout = 30 * time.Second

// Options controls PDF output. Paper sizes are in inches; zero values
// fall back to A4.
type Options struct {
	PaperWidth  float64
	PaperHeight float64
	// Portrait disables the default landscape orientation.
	Portrait bool
	Timeout  time.Duration
	// ExecPath points at a Chromium binary when it is not on PATH.
	ExecPath string
}

func (o Options) withDefaults() Options {
	if o.PaperWidth <= 0 {
		o.PaperWidth = 8.27
	}
	if o.PaperHeight <= 0 {
		o.PaperHeight = 11.69
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// PDF loads html into a blank page and prints it.
func PDF(parent context.Context, html string, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	allocCtx := parent
	if opts.ExecPath != "" {
		alloc := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(opts.ExecPath))
		var cancel context.CancelFunc
		allocCtx, cancel = chromedp.NewExecAllocator(parent, alloc...)
		defer cancel()
	}

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var pdf []byte
	tasks := chromedp.Tasks{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithLandscape(!opts.Portrait).
				WithPrintBackground(true).
				WithPaperWidth(opts.PaperWidth).
				WithPaperHeight(opts.PaperHeight).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("printer: chromedp run failed: %w", err)
	}
	log.Debug("printer: pdf rendered", "bytes", len(pdf), "took", time.Since(start))
	return pdf, nil
}
