package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Chrome handles the Chrome automation. It owns one browser tab for its whole
// lifetime, so cookies set by one load are sent with the next.
type Chrome struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc
}

// NewChrome starts a browser and opens the tab used for every load
func NewChrome(headless bool, log zerolog.Logger) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080),
		chromedp.NoSandbox,
		chromedp.Flag("disable-features", "SameSiteByDefaultCookies,CookiesWithoutSameSiteMustBeSecure"),
	)
	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	browserLog := browserLogf(log)
	tabCtx, cancelTab := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(browserLog),
		chromedp.WithErrorf(browserLog),
	)

	// the first Run starts the browser and attaches the tab
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("❌ Failed to start browser: %w", err)
	}

	return &Chrome{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
	}, nil
}

// browserLogf only logs critical browser errors, ignoring routine messages and cookie errors
func browserLogf(log zerolog.Logger) func(string, ...interface{}) {
	return func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		if (strings.Contains(msg, "error") || strings.Contains(msg, "failed")) &&
			!strings.Contains(msg, "cookiePart") &&
			!strings.Contains(msg, "unmarshal event") {
			log.Warn().Msgf("🌐 %s", msg)
		}
	}
}

// Close closes the tab and the browser
func (c *Chrome) Close() {
	c.cancelTab()
	c.cancelAlloc()
}

// scope derives a context of the tab that ends when ctx ends
func (c *Chrome) scope(ctx context.Context) context.Context {
	scoped, cancel := context.WithCancel(c.tabCtx)
	context.AfterFunc(ctx, cancel)
	return scoped
}

// Navigate implements Engine. The load event listener lives as long as ctx.
func (c *Chrome) Navigate(ctx context.Context, req Request, loaded func(error)) error {
	tabCtx := c.scope(ctx)

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			loaded(nil)
		}
	})

	if req.Form == nil {
		return chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, err := page.Navigate(req.URL).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("page load error %s", errorText)
			}
			return nil
		}))
	}

	script, err := submitScript(req)
	if err != nil {
		return err
	}
	return chromedp.Run(tabCtx, chromedp.Evaluate(script, nil))
}

// ToHTML implements Engine
func (c *Chrome) ToHTML(ctx context.Context, fn func(markup string, err error)) {
	tabCtx := c.scope(ctx)
	go func() {
		var html string
		err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
		fn(html, err)
	}()
}

type formField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// submitScript creates the JavaScript that posts req.Form to req.URL from the current
// document, the way a user submitting the site's form would.
func submitScript(req Request) (string, error) {
	names := make([]string, 0, len(req.Form))
	for name := range req.Form {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := []formField{}
	for _, name := range names {
		for _, value := range req.Form[name] {
			fields = append(fields, formField{Name: name, Value: value})
		}
	}

	action, err := json.Marshal(req.URL)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`
		(function(action, fields) {
			const form = document.createElement('form');
			form.method = 'POST';
			form.action = action;
			form.enctype = 'application/x-www-form-urlencoded';
			fields.forEach((field) => {
				const input = document.createElement('input');
				input.type = 'hidden';
				input.name = field.name;
				input.value = field.value;
				form.appendChild(input);
			});
			(document.body || document.documentElement).appendChild(form);
			HTMLFormElement.prototype.submit.call(form);
		})(%s, %s);
	`, action, encoded), nil
}
