package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pomon/internal/utils"
	"pomon/pkg/portal"
	"pomon/pkg/storage"
)

const (
	// Intervals under the floor are coerced to the default rather than
	// rejected; the control API validates stricter limits up front.
	minInterval     = 10 * time.Second
	defaultInterval = time.Minute
)

var (
	// ErrAlreadyActive is returned by Start when a run is in progress.
	ErrAlreadyActive = errors.New("monitor is already active")
	// ErrNotActive is returned by Stop when no run is in progress.
	ErrNotActive = errors.New("monitor is not active")

	errSessionUnavailable = errors.New("session unavailable")
)

// State is the scheduler's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Monitor is the scheduler: it owns the run/stop lifecycle, the session
// manager, and the alerted set. Checks execute on a single goroutine, so a
// tick never races an in-flight check.
type Monitor struct {
	sessions *SessionManager
	fetcher  *Fetcher
	notifier AlertNotifier
	log      Logger
	store    *storage.DB // optional check/alert history

	mu      sync.Mutex
	state   State
	params  Params
	alerted map[string]bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Monitor around a browser automation driver. log receives the
// operator-visible stream (may be nil); store records check history (may be
// nil).
func New(driver portal.Driver, notifier AlertNotifier, log Logger, store *storage.DB) *Monitor {
	if log == nil {
		log = nopLogger{}
	}
	m := &Monitor{
		notifier: notifier,
		log:      log,
		store:    store,
	}
	m.sessions = NewSessionManager(driver, log)
	m.sessions.OnFatal(m.abort)
	m.fetcher = NewFetcher(m.sessions, log)
	return m
}

// Active reports whether a monitoring run is in progress.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateStarting || m.state == StateRunning
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins a monitoring run: it clears run-scoped state, performs the
// first check synchronously, and only arms the polling loop when that check
// managed to establish a session. A run that cannot even log in never
// reaches Running, so a dead monitor cannot look active.
func (m *Monitor) Start(params Params) error {
	params.Interval = coerceInterval(params.Interval)

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		cancel()
		return ErrAlreadyActive
	}
	m.state = StateStarting
	m.params = params
	m.alerted = make(map[string]bool)
	m.cancel = cancel
	m.mu.Unlock()

	m.log.Publish(KindSystem, "Attempting to start PO monitoring service...")
	m.warnIncompleteEmail(params.Email)

	if err := m.runCheck(ctx); err != nil && errors.Is(err, errSessionUnavailable) {
		m.sessions.Teardown()
		m.mu.Lock()
		m.state = StateIdle
		m.cancel = nil
		m.alerted = nil
		m.mu.Unlock()
		cancel()
		m.log.Publish(KindError, "Monitoring could not be started (initial check failed). Please check logs.")
		return fmt.Errorf("first check failed: %w", err)
	}

	m.mu.Lock()
	if m.state != StateStarting {
		// Aborted or stopped while the first check ran.
		m.mu.Unlock()
		return ErrNotActive
	}
	m.state = StateRunning
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
	m.log.Publish(KindSystem, fmt.Sprintf("Monitoring started. Polling every %s.", params.Interval))
	return nil
}

// Stop cancels the loop, tears the session down best-effort, and clears all
// run-scoped state. Safe to call in any state, including mid-check.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state == StateIdle || m.state == StateStopping {
		m.mu.Unlock()
		return ErrNotActive
	}
	m.state = StateStopping
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	m.log.Publish(KindSystem, "Attempting to stop PO monitoring service...")
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.sessions.Teardown()

	m.mu.Lock()
	m.state = StateIdle
	m.cancel = nil
	m.done = nil
	m.alerted = nil
	m.mu.Unlock()

	m.log.Publish(KindSystem, "Monitoring stopped and browser resources cleaned up.")
	return nil
}

// RunOnce performs a single check outside of any monitoring run, for the
// one-shot CLI path. The engine must be idle.
func (m *Monitor) RunOnce(ctx context.Context, params Params) ([]Alert, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	m.state = StateStarting
	m.params = params
	m.alerted = make(map[string]bool)
	m.mu.Unlock()

	defer func() {
		m.sessions.Teardown()
		m.mu.Lock()
		m.state = StateIdle
		m.alerted = nil
		m.mu.Unlock()
	}()

	if err := m.sessions.Ensure(ctx, params.Username, params.Password); err != nil {
		return nil, err
	}
	sess := m.sessions.Session()
	if err := m.fetcher.SelectSite(sess, params.Site); err != nil {
		return nil, err
	}
	trucks, ancillaries, err := m.fetcher.FetchDatasets(ctx, sess, params.Site, params.StartDate, params.EndDate)
	if err != nil {
		return nil, err
	}
	alerts := Detect(trucks, ancillaries, m.alerted)
	for _, a := range alerts {
		m.notifier.Notify(a, params.Email)
	}
	return alerts, nil
}

// loop drives the repeating checks. One non-interruptible check per tick;
// a failed check is logged and the loop simply waits for the next tick.
func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.params.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.log.Publish(KindInfo, "Performing scheduled PO check...")
			if err := m.runCheck(ctx); err != nil {
				utils.Log.Warnf("Scheduled check failed: %v", err)
				continue
			}
			m.log.Publish(KindInfo, "Scheduled PO check complete.")
		}
	}
}

// runCheck executes one full check cycle: ensure session, select site,
// fetch both datasets, detect, notify. Every failure is logged here; the
// error return only classifies it for the caller.
func (m *Monitor) runCheck(ctx context.Context) error {
	m.log.Publish(KindInfo, "Performing a single check for problematic POs...")

	m.mu.Lock()
	params := m.params
	alerted := m.alerted
	m.mu.Unlock()

	if err := m.sessions.Ensure(ctx, params.Username, params.Password); err != nil {
		m.log.Publish(KindError, fmt.Sprintf("Cannot perform check due to login/browser issues: %v. Will retry next cycle if monitor active.", err))
		m.recordCycle(ctx, 0, 0, 0, err)
		return fmt.Errorf("%w: %v", errSessionUnavailable, err)
	}
	sess := m.sessions.Session()

	if err := m.fetcher.SelectSite(sess, params.Site); err != nil {
		m.log.Publish(KindError, fmt.Sprintf("Site selection failed: %v", err))
		m.recordCycle(ctx, 0, 0, 0, err)
		return err
	}

	trucks, ancillaries, err := m.fetcher.FetchDatasets(ctx, sess, params.Site, params.StartDate, params.EndDate)
	if err != nil {
		m.log.Publish(KindError, fmt.Sprintf("Error in single check: %v", err))
		m.recordCycle(ctx, 0, 0, 0, err)
		return err
	}

	alerts := Detect(trucks, ancillaries, alerted)
	for _, a := range alerts {
		m.notifier.Notify(a, params.Email)
		m.recordAlert(ctx, a)
	}

	if len(alerts) > 0 {
		m.log.Publish(KindInfo, fmt.Sprintf("%d new problematic PO(s) found.", len(alerts)))
	} else {
		m.log.Publish(KindInfo, fmt.Sprintf("No new problematic POs. Processed: %d trucks, %d ancillary items.", len(trucks), len(ancillaries)))
	}
	m.recordCycle(ctx, len(trucks), len(ancillaries), len(alerts), nil)
	return nil
}

// abort reacts to the fatal browser-disconnect signal: the whole run must
// stop, and the handles are already gone.
func (m *Monitor) abort() {
	m.mu.Lock()
	if m.state != StateStarting && m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	m.log.Publish(KindError, "Browser disconnected. Stopping monitor.")
	if cancel != nil {
		cancel()
	}
	go func() {
		if done != nil {
			<-done
		}
		m.mu.Lock()
		m.state = StateIdle
		m.cancel = nil
		m.done = nil
		m.alerted = nil
		m.mu.Unlock()
	}()
}

func (m *Monitor) warnIncompleteEmail(cfg *EmailConfig) {
	if cfg != nil && !cfg.Complete() {
		m.log.Publish(KindWarn, "Email config incomplete. To enable email alerts, provide recipient, sender email and password (plus host and port for custom SMTP).")
	}
}

func (m *Monitor) recordCycle(ctx context.Context, trucks, ancillaries, newAlerts int, checkErr error) {
	if m.store == nil {
		return
	}
	errText := ""
	if checkErr != nil {
		errText = checkErr.Error()
	}
	if err := m.store.RecordCycle(ctx, storage.Cycle{
		StartedAt:      time.Now().UTC(),
		TruckCount:     trucks,
		AncillaryCount: ancillaries,
		NewAlerts:      newAlerts,
		Error:          errText,
	}); err != nil {
		utils.Log.Warnf("Could not record check cycle: %v", err)
	}
}

func (m *Monitor) recordAlert(ctx context.Context, a Alert) {
	if m.store == nil {
		return
	}
	if err := m.store.RecordAlert(ctx, storage.AlertRecord{
		EmittedAt:      time.Now().UTC(),
		PONumber:       a.PONumber,
		CreatedDate:    a.CreatedDate,
		AncillaryTotal: a.AncillaryTotal,
		PalletsIn:      a.PalletsIn,
		Diff:           a.Diff,
	}); err != nil {
		utils.Log.Warnf("Could not record alert for PO %s: %v", a.PONumber, err)
	}
}

func coerceInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return defaultInterval
	}
	return d
}
