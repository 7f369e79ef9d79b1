package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// Tab wraps a Rod page with capture-specific setup. It implements the
// page-side interfaces the planning and acquisition loops drive.
type Tab struct {
	Page    *rod.Page
	PageURL string

	saved struct {
		applied  bool
		zoom     string
		overflow string
	}
}

// OpenTab creates a new tab, navigates to the URL, and waits for the load
// event. With stealth enabled the tab carries the stealth evasion patches.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string, navTimeout time.Duration) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// Metrics returns the live total scroll height and viewport height.
func (t *Tab) Metrics(ctx context.Context) (total, viewport int, err error) {
	res, err := t.Page.Context(ctx).Eval(`() => {
		const e = document.scrollingElement || document.documentElement;
		return {total: e.scrollHeight, viewport: window.innerHeight};
	}`)
	if err != nil {
		return 0, 0, fmt.Errorf("browser: metrics: %w", err)
	}
	return res.Value.Get("total").Int(), res.Value.Get("viewport").Int(), nil
}

// ScrollTo moves the viewport to the given offset via the scrolling
// element, not smooth scrolling: the capture loop needs exact positions.
func (t *Tab) ScrollTo(ctx context.Context, y int) error {
	_, err := t.Page.Context(ctx).Eval(`(y) => {
		const e = document.scrollingElement || document.documentElement;
		e.scrollTop = y;
		return e.scrollTop;
	}`, y)
	if err != nil {
		return fmt.Errorf("browser: scroll to %d: %w", y, err)
	}
	return nil
}

// WaitQuiescent resolves once no DOM mutation has been observed for window,
// or after timeout on perpetually busy pages. Rod awaits the promise.
func (t *Tab) WaitQuiescent(ctx context.Context, window, timeout time.Duration) error {
	_, err := t.Page.Context(ctx).Eval(`(windowMs, timeoutMs) => new Promise(resolve => {
		let timer = null;
		let cap = null;
		const done = (settled) => {
			obs.disconnect();
			clearTimeout(timer);
			clearTimeout(cap);
			resolve(settled);
		};
		const obs = new MutationObserver(() => {
			clearTimeout(timer);
			timer = setTimeout(() => done(true), windowMs);
		});
		obs.observe(document.documentElement, {
			childList: true, subtree: true, attributes: true, characterData: true,
		});
		timer = setTimeout(() => done(true), windowMs);
		cap = setTimeout(() => done(false), timeoutMs);
	})`, window.Milliseconds(), timeout.Milliseconds())
	if err != nil {
		return fmt.Errorf("browser: wait quiescent: %w", err)
	}
	return nil
}

// CaptureViewport captures the current viewport as PNG. PNG keeps the tile
// lossless so row hashing during stitching sees stable pixels.
func (t *Tab) CaptureViewport(ctx context.Context) ([]byte, error) {
	data, err := t.Page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: capture viewport: %w", err)
	}
	return data, nil
}

// CaptureViewportJPEG captures the current viewport as JPEG at the given
// quality. Used for preview frames where size matters more than fidelity.
func (t *Tab) CaptureViewportJPEG(ctx context.Context, quality int) ([]byte, error) {
	data, err := t.Page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(quality),
	})
	if err != nil {
		return nil, fmt.Errorf("browser: capture viewport jpeg: %w", err)
	}
	return data, nil
}

// ApplyTransform applies the page-wide capture transform: hide scrollbars
// so they never appear in tiles, and zoom out when the page is too tall for
// the raster ceiling. Saves the prior inline styles for RestoreTransform.
func (t *Tab) ApplyTransform(ctx context.Context, scale float64) error {
	res, err := t.Page.Context(ctx).Eval(`(scale) => {
		const d = document.documentElement;
		const saved = {zoom: d.style.zoom || '', overflow: d.style.overflow || ''};
		if (scale > 0 && scale !== 1) {
			d.style.zoom = String(scale);
		}
		// overflow:hidden removes the scrollbar; scrollTop still works.
		d.style.overflow = 'hidden';
		return saved;
	}`, scale)
	if err != nil {
		return fmt.Errorf("browser: apply transform: %w", err)
	}
	t.saved.zoom = res.Value.Get("zoom").Str()
	t.saved.overflow = res.Value.Get("overflow").Str()
	t.saved.applied = true
	return nil
}

// RestoreTransform puts the page-wide styles back exactly as saved.
// No-op when ApplyTransform never ran.
func (t *Tab) RestoreTransform(ctx context.Context) error {
	if !t.saved.applied {
		return nil
	}
	_, err := t.Page.Context(ctx).Eval(`(zoom, overflow) => {
		const d = document.documentElement;
		if (zoom) { d.style.zoom = zoom; } else { d.style.removeProperty('zoom'); }
		if (overflow) { d.style.overflow = overflow; } else { d.style.removeProperty('overflow'); }
		return true;
	}`, t.saved.zoom, t.saved.overflow)
	if err != nil {
		return fmt.Errorf("browser: restore transform: %w", err)
	}
	t.saved.applied = false
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
