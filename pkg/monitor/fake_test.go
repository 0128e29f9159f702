package monitor

import (
	"errors"
	"strings"
	"sync"
	"time"

	"pomon/pkg/portal"
)

// In-memory stand-ins for the portal capability surface. The fake page emits
// the token-bearing request when the login button is clicked and serves
// canned dataset responses keyed by URL substring.

type fakeRequest struct {
	url  string
	auth string
}

func (r fakeRequest) URL() string { return r.url }

func (r fakeRequest) Header(name string) string {
	if strings.EqualFold(name, "Authorization") {
		return r.auth
	}
	return ""
}

type fakePage struct {
	mu        sync.Mutex
	onRequest func(portal.Request)
	closed    bool

	navigations int
	fills       map[string]string
	clicks      []string
	selected    []string
	selectErr   error
	html        string

	// emitToken controls whether clicking the login button fires the
	// token-bearing request.
	emitToken bool
	token     string

	responses map[string]*portal.Response
	gets      []string
}

func newFakePage() *fakePage {
	return &fakePage{
		fills:     make(map[string]string),
		emitToken: true,
		token:     "tok-1",
		responses: make(map[string]*portal.Response),
	}
}

func (p *fakePage) respond(urlPart string, status int, body string) {
	p.mu.Lock()
	p.responses[urlPart] = &portal.Response{Status: status, Body: []byte(body)}
	p.mu.Unlock()
}

func (p *fakePage) Navigate(url string, _ time.Duration) error {
	p.mu.Lock()
	p.navigations++
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitVisible(selector string, _ time.Duration) error { return nil }

func (p *fakePage) Fill(selector, value string) error {
	p.mu.Lock()
	p.fills[selector] = value
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Click(selector string) error {
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	emit := p.emitToken && selector == portal.LoginButtonSelector
	fn := p.onRequest
	token := p.token
	p.mu.Unlock()

	if emit && fn != nil {
		fn(fakeRequest{
			url:  "https://siteadminsso.capstonelogistics.com/api/user/byusername/someone",
			auth: "Bearer " + token,
		})
	}
	return nil
}

func (p *fakePage) SelectByLabel(selector, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selectErr != nil {
		return p.selectErr
	}
	p.selected = append(p.selected, label)
	return nil
}

func (p *fakePage) OnRequest(fn func(portal.Request)) {
	p.mu.Lock()
	p.onRequest = fn
	p.mu.Unlock()
}

func (p *fakePage) Get(url string, headers map[string]string, _ time.Duration) (*portal.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets = append(p.gets, url)
	for part, resp := range p.responses {
		if strings.Contains(url, part) {
			return resp, nil
		}
	}
	return nil, errors.New("no canned response for " + url)
}

func (p *fakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type fakeBrowser struct {
	mu           sync.Mutex
	page         *fakePage
	connected    bool
	disconnected func()
	contextErr   error
}

type fakeContext struct {
	b *fakeBrowser
}

type fakeDriver struct {
	mu        sync.Mutex
	browsers  []*fakeBrowser
	launchErr error
	// newPage builds the page for each launched browser.
	newPage func() *fakePage
}

func newFakeDriver(page *fakePage) *fakeDriver {
	return &fakeDriver{newPage: func() *fakePage { return page }}
}

func (d *fakeDriver) Launch() (portal.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	b := &fakeBrowser{page: d.newPage(), connected: true}
	d.browsers = append(d.browsers, b)
	return b, nil
}

func (d *fakeDriver) launched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.browsers)
}

func (d *fakeDriver) lastBrowser() *fakeBrowser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.browsers) == 0 {
		return nil
	}
	return d.browsers[len(d.browsers)-1]
}

func (b *fakeBrowser) NewContext() (portal.BrowserContext, error) {
	if b.contextErr != nil {
		return nil, b.contextErr
	}
	return &fakeContext{b: b}, nil
}

func (b *fakeBrowser) OnDisconnected(fn func()) {
	b.mu.Lock()
	b.disconnected = fn
	b.mu.Unlock()
}

func (b *fakeBrowser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

// dropConnection simulates the browser process dying out-of-band.
func (b *fakeBrowser) dropConnection() {
	b.mu.Lock()
	b.connected = false
	fn := b.disconnected
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *fakeContext) NewPage() (portal.Page, error) { return c.b.page, nil }

func (c *fakeContext) Close() error { return nil }

// recordingLogger captures the broadcast stream for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []broadcastEntry
}

type broadcastEntry struct {
	Kind    string
	Message string
}

func (l *recordingLogger) Publish(kind, message string) {
	l.mu.Lock()
	l.entries = append(l.entries, broadcastEntry{Kind: kind, Message: message})
	l.mu.Unlock()
}

func (l *recordingLogger) byKind(kind string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e.Message)
		}
	}
	return out
}

// recordingNotifier captures alert fan-out.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	emails []*EmailConfig
}

func (n *recordingNotifier) Notify(a Alert, email *EmailConfig) {
	n.mu.Lock()
	n.alerts = append(n.alerts, a)
	n.emails = append(n.emails, email)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}
