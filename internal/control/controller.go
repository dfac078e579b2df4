// Package control drives a single browser tab for verification.
package control

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// DefaultTimeout bounds each operation unless SetTimeout is called.
const DefaultTimeout = 30 * time.Second

// Controller runs page operations against a chromedp tab context.
type Controller struct {
	tabCtx  context.Context
	timeout time.Duration
}

// NewController creates a controller for the tab owned by tabCtx.
func NewController(tabCtx context.Context) *Controller {
	return &Controller{
		tabCtx:  tabCtx,
		timeout: DefaultTimeout,
	}
}

// SetTimeout sets the timeout for operations.
func (c *Controller) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Timeout returns the per-operation timeout.
func (c *Controller) Timeout() time.Duration {
	return c.timeout
}

// Navigate navigates to url and waits for the load event.
// Network failures such as net::ERR_CONNECTION_REFUSED are returned as errors.
func (c *Controller) Navigate(url string) error {
	ctx, cancel := context.WithTimeout(c.tabCtx, c.timeout)
	defer cancel()

	return chromedp.Run(ctx, chromedp.Navigate(url))
}

// QueryAttribute returns the attribute of the first element matching selector.
// found is false when nothing matches; the query does not wait for a match.
func (c *Controller) QueryAttribute(selector, attribute string) (value string, found bool, err error) {
	ctx, cancel := context.WithTimeout(c.tabCtx, c.timeout)
	defer cancel()

	var nodes []*cdp.Node
	err = chromedp.Run(ctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return "", false, err
	}
	if len(nodes) == 0 {
		return "", false, nil
	}

	return nodes[0].AttributeValue(attribute), true, nil
}

// Screenshot captures the page as PNG bytes: the viewport, or the whole
// scrollable page when fullPage is set.
func (c *Controller) Screenshot(fullPage bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(c.tabCtx, c.timeout)
	defer cancel()

	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// quality 100 keeps the PNG encoding
		action = chromedp.FullScreenshot(&buf, 100)
	}

	if err := chromedp.Run(ctx, action); err != nil {
		return nil, err
	}

	return buf, nil
}
