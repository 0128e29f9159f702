package portal

import "time"

// Driver launches browsers. The engine only ever talks to the portal through
// this capability surface, so tests can swap the real Playwright driver for
// an in-memory fake.
type Driver interface {
	Launch() (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewContext() (BrowserContext, error)
	// OnDisconnected registers a callback fired when the browser process
	// goes away out-of-band (crash, OOM kill). May fire at most once.
	OnDisconnected(fn func())
	IsConnected() bool
	Close() error
}

// BrowserContext is an isolated browsing context within a Browser.
type BrowserContext interface {
	NewPage() (Page, error)
	Close() error
}

// Request is an outbound network request observed on a page.
type Request interface {
	URL() string
	// Header returns the named request header, or "" if absent.
	Header(name string) string
}

// Response is the result of an in-page HTTP call.
type Response struct {
	Status int
	Body   []byte
}

// Page is a single page within a context.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	Fill(selector, value string) error
	Click(selector string) error
	// SelectByLabel picks a dropdown option by its visible label.
	SelectByLabel(selector, label string) error
	// OnRequest observes every outbound request the page issues.
	OnRequest(fn func(Request))
	// Get issues an authenticated HTTP GET through the page's own network
	// stack, so it shares the page's cookies and TLS session.
	Get(url string, headers map[string]string, timeout time.Duration) (*Response, error)
	Content() (string, error)
	IsClosed() bool
	Close() error
}
