package portal

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver drives a headless Chromium through Playwright. It is the
// only Driver implementation that talks to a real browser.
type PlaywrightDriver struct {
	Headless bool
	SlowMo   time.Duration
}

func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{Headless: true, SlowMo: 50 * time.Millisecond}
}

func (d *PlaywrightDriver) Launch() (Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.Headless),
		SlowMo:   playwright.Float(float64(d.SlowMo.Milliseconds())),
		Args:     []string{"--no-sandbox", "--disable-setuid-sandbox"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	return &pwBrowser{pw: pw, browser: browser}, nil
}

type pwBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (b *pwBrowser) NewContext() (BrowserContext, error) {
	ctx, err := b.browser.NewContext()
	if err != nil {
		return nil, err
	}
	return &pwContext{ctx: ctx}, nil
}

func (b *pwBrowser) OnDisconnected(fn func()) {
	b.browser.OnDisconnected(func(playwright.Browser) { fn() })
}

func (b *pwBrowser) IsConnected() bool {
	return b.browser.IsConnected()
}

func (b *pwBrowser) Close() error {
	err := b.browser.Close()
	if serr := b.pw.Stop(); err == nil {
		err = serr
	}
	return err
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Navigate(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pwPage) WaitVisible(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) Fill(selector, value string) error {
	return p.page.Fill(selector, value)
}

func (p *pwPage) Click(selector string) error {
	return p.page.Click(selector)
}

func (p *pwPage) SelectByLabel(selector, label string) error {
	_, err := p.page.SelectOption(selector, playwright.SelectOptionValues{
		Labels: &[]string{label},
	})
	return err
}

func (p *pwPage) OnRequest(fn func(Request)) {
	p.page.OnRequest(func(req playwright.Request) {
		fn(pwRequest{req: req})
	})
}

func (p *pwPage) Get(url string, headers map[string]string, timeout time.Duration) (*Response, error) {
	resp, err := p.page.Request().Get(url, playwright.APIRequestContextGetOptions{
		Headers: headers,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, err
	}
	body, err := resp.Body()
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.Status(), Body: body}, nil
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

type pwRequest struct {
	req playwright.Request
}

func (r pwRequest) URL() string {
	return r.req.URL()
}

func (r pwRequest) Header(name string) string {
	v, err := r.req.HeaderValue(name)
	if err != nil {
		return ""
	}
	return v
}
