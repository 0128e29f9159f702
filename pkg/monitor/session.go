package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pomon/internal/utils"
	"pomon/pkg/portal"
)

const (
	navigateTimeout     = 60 * time.Second
	loginFormTimeout    = 15 * time.Second
	tokenCaptureTimeout = 60 * time.Second
)

// Session is one authenticated portal session. The handles are owned
// exclusively by the SessionManager; nothing outside this package touches
// them. Token and SiteSelected are always invalidated together: a token
// without a confirmed site selection is never reused.
type Session struct {
	Browser portal.Browser
	Context portal.BrowserContext
	Page    portal.Page

	Token        string
	SiteSelected bool
}

func (s *Session) usable() bool {
	return s != nil &&
		s.Token != "" &&
		s.Page != nil && !s.Page.IsClosed() &&
		s.Browser != nil && s.Browser.IsConnected()
}

// SessionManager owns the authenticated-session lifecycle: acquire, reuse,
// invalidate, recover.
type SessionManager struct {
	driver portal.Driver
	log    Logger

	// onFatal fires when the browser process disconnects out-of-band. The
	// scheduler uses it to abort the whole run.
	onFatal func()

	tokenTimeout time.Duration

	mu   sync.Mutex
	sess *Session
}

func NewSessionManager(driver portal.Driver, log Logger) *SessionManager {
	if log == nil {
		log = nopLogger{}
	}
	return &SessionManager{
		driver:       driver,
		log:          log,
		tokenTimeout: tokenCaptureTimeout,
	}
}

// OnFatal registers the callback fired on browser disconnect. Must be set
// before the first Ensure.
func (m *SessionManager) OnFatal(fn func()) {
	m.onFatal = fn
}

// Session returns the current session, or nil.
func (m *SessionManager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Ensure makes sure a usable authenticated session exists. The common case
// after the first cycle is immediate reuse; otherwise it performs a full
// acquire: launch, navigate, submit credentials, and race the token-bearing
// request against a hard timeout. On failure everything partially created is
// torn down and an error is returned; the caller skips this cycle and tries
// again on the next one.
func (m *SessionManager) Ensure(ctx context.Context, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.usable() {
		utils.Log.Debug("Reusing existing browser session and token")
		return nil
	}

	if username == "" || password == "" {
		return errors.New("username or password not provided")
	}

	m.log.Publish(KindInfo, "Setting up new browser session or re-logging in.")
	m.closeLocked(m.sess)
	m.sess = nil

	sess, err := m.acquire(ctx, username, password)
	if err != nil {
		m.closeLocked(sess)
		return err
	}
	m.sess = sess
	m.log.Publish(KindInfo, "Login and token capture successful.")
	return nil
}

// acquire builds a fresh session. On error the returned session holds
// whatever handles were created so far, for the caller to tear down.
func (m *SessionManager) acquire(ctx context.Context, username, password string) (*Session, error) {
	sess := &Session{}

	browser, err := m.driver.Launch()
	if err != nil {
		return sess, fmt.Errorf("launching browser: %w", err)
	}
	sess.Browser = browser
	browser.OnDisconnected(m.handleDisconnect)

	browserCtx, err := browser.NewContext()
	if err != nil {
		return sess, fmt.Errorf("opening browser context: %w", err)
	}
	sess.Context = browserCtx

	page, err := browserCtx.NewPage()
	if err != nil {
		return sess, fmt.Errorf("opening page: %w", err)
	}
	sess.Page = page

	// The portal only reveals the bearer token inside the Authorization
	// header of an outbound request the logged-in page makes. Watch for it
	// before the navigation starts so the race cannot be lost.
	tokenCh := make(chan string, 1)
	page.OnRequest(func(req portal.Request) {
		if !strings.Contains(req.URL(), portal.TokenRequestURLFragment) {
			return
		}
		auth := req.Header("Authorization")
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			select {
			case tokenCh <- auth[7:]:
			default:
			}
		}
	})

	if err := page.Navigate(portal.LoginURL, navigateTimeout); err != nil {
		return sess, fmt.Errorf("navigating to login page: %w", err)
	}
	if err := page.WaitVisible(portal.UsernameSelector, loginFormTimeout); err != nil {
		return sess, fmt.Errorf("waiting for login form: %w", err)
	}
	if err := page.Fill(portal.UsernameSelector, username); err != nil {
		return sess, fmt.Errorf("filling username: %w", err)
	}
	if err := page.Fill(portal.PasswordSelector, password); err != nil {
		return sess, fmt.Errorf("filling password: %w", err)
	}
	if err := page.Click(portal.LoginButtonSelector); err != nil {
		return sess, fmt.Errorf("submitting login form: %w", err)
	}

	// Exactly one of the three outcomes fires.
	timer := time.NewTimer(m.tokenTimeout)
	defer timer.Stop()
	select {
	case token := <-tokenCh:
		sess.Token = token
	case <-timer.C:
		return sess, errors.New("timed out capturing bearer token")
	case <-ctx.Done():
		return sess, ctx.Err()
	}

	return sess, nil
}

// Invalidate clears the bearer token and the site-selection flag after a
// downstream 401. The browser stays up: the next Ensure reuses it but must
// re-authenticate and re-select the site.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return
	}
	m.sess.Token = ""
	m.sess.SiteSelected = false
}

// Teardown closes all session handles, best-effort, and drops the session.
func (m *SessionManager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(m.sess)
	m.sess = nil
}

// closeLocked releases every handle a session holds. Each step swallows its
// own error with a warning so a failing close never blocks the next one.
func (m *SessionManager) closeLocked(sess *Session) {
	if sess == nil {
		return
	}
	if sess.Page != nil && !sess.Page.IsClosed() {
		if err := sess.Page.Close(); err != nil {
			m.log.Publish(KindWarn, fmt.Sprintf("Error closing page: %v", err))
		}
	}
	if sess.Context != nil {
		if err := sess.Context.Close(); err != nil {
			m.log.Publish(KindWarn, fmt.Sprintf("Error closing browser context: %v", err))
		}
	}
	if sess.Browser != nil && sess.Browser.IsConnected() {
		if err := sess.Browser.Close(); err != nil {
			m.log.Publish(KindWarn, fmt.Sprintf("Error closing browser: %v", err))
		}
	}
	sess.Page = nil
	sess.Context = nil
	sess.Browser = nil
	sess.Token = ""
	sess.SiteSelected = false
}

// handleDisconnect reacts to the out-of-band browser disconnect signal: the
// handles are gone, so they are force-cleared without closing, and the run
// is flagged as must-stop through onFatal.
func (m *SessionManager) handleDisconnect() {
	m.log.Publish(KindWarn, "Browser disconnected event fired.")
	m.mu.Lock()
	m.sess = nil
	m.mu.Unlock()
	if m.onFatal != nil {
		m.onFatal()
	}
}
