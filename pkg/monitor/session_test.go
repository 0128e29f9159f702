package monitor

import (
	"context"
	"testing"
	"time"

	"pomon/pkg/portal"
)

func TestEnsureAcquiresSession(t *testing.T) {
	page := newFakePage()
	driver := newFakeDriver(page)
	mgr := NewSessionManager(driver, nil)

	if err := mgr.Ensure(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	sess := mgr.Session()
	if sess == nil || sess.Token != "tok-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if page.fills[portal.UsernameSelector] != "user" || page.fills[portal.PasswordSelector] != "pass" {
		t.Errorf("credentials not filled: %v", page.fills)
	}
	if driver.launched() != 1 {
		t.Errorf("expected 1 launch, got %d", driver.launched())
	}
}

func TestEnsureReusesUsableSession(t *testing.T) {
	page := newFakePage()
	driver := newFakeDriver(page)
	mgr := NewSessionManager(driver, nil)

	if err := mgr.Ensure(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	if err := mgr.Ensure(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}

	if driver.launched() != 1 {
		t.Errorf("expected session reuse, got %d launches", driver.launched())
	}
	if page.navigations != 1 {
		t.Errorf("expected 1 navigation, got %d", page.navigations)
	}
}

func TestEnsureMissingCredentials(t *testing.T) {
	mgr := NewSessionManager(newFakeDriver(newFakePage()), nil)
	if err := mgr.Ensure(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestEnsureTokenTimeout(t *testing.T) {
	page := newFakePage()
	page.emitToken = false
	driver := newFakeDriver(page)
	mgr := NewSessionManager(driver, nil)
	mgr.tokenTimeout = 50 * time.Millisecond

	if err := mgr.Ensure(context.Background(), "user", "pass"); err == nil {
		t.Fatal("expected token capture timeout")
	}
	if mgr.Session() != nil {
		t.Error("session should not be kept after a failed acquire")
	}
	if b := driver.lastBrowser(); b != nil && b.IsConnected() {
		t.Error("browser should be closed after a failed acquire")
	}
}

func TestEnsureCancelled(t *testing.T) {
	page := newFakePage()
	page.emitToken = false
	driver := newFakeDriver(page)
	mgr := NewSessionManager(driver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mgr.Ensure(ctx, "user", "pass"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestInvalidateKeepsBrowser(t *testing.T) {
	page := newFakePage()
	driver := newFakeDriver(page)
	mgr := NewSessionManager(driver, nil)

	if err := mgr.Ensure(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	sess := mgr.Session()
	sess.SiteSelected = true

	mgr.Invalidate()

	if sess.Token != "" || sess.SiteSelected {
		t.Errorf("token and site flag must be cleared together: %+v", sess)
	}
	if !driver.lastBrowser().IsConnected() {
		t.Error("invalidate must not close the browser")
	}

	// The next Ensure sees an unusable session and does a full re-login.
	if err := mgr.Ensure(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("re-Ensure failed: %v", err)
	}
	if mgr.Session().Token != "tok-1" {
		t.Errorf("expected fresh token, got %q", mgr.Session().Token)
	}
}

func TestTeardown(t *testing.T) {
	page := newFakePage()
	driver := newFakeDriver(page)
	mgr := NewSessionManager(driver, nil)

	if err := mgr.Ensure(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	mgr.Teardown()

	if mgr.Session() != nil {
		t.Error("session should be dropped")
	}
	if !page.IsClosed() {
		t.Error("page should be closed")
	}
	if driver.lastBrowser().IsConnected() {
		t.Error("browser should be closed")
	}
}

func TestBrowserDisconnectFiresOnFatal(t *testing.T) {
	page := newFakePage()
	driver := newFakeDriver(page)
	mgr := NewSessionManager(driver, nil)

	fired := make(chan struct{}, 1)
	mgr.OnFatal(func() { fired <- struct{}{} })

	if err := mgr.Ensure(context.Background(), "user", "pass"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	driver.lastBrowser().dropConnection()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("onFatal never fired")
	}
	if mgr.Session() != nil {
		t.Error("session must be cleared on disconnect")
	}
}
