// Package idle logs the operator out after a period without interaction,
// warning shortly before.
package idle

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/tim-admin/internal/client/notify"
	"github.com/and161185/tim-admin/internal/client/session"
)

// Signal is an interaction event type.
type Signal int

const (
	PointerMove Signal = iota
	PointerDown
	KeyDown
	Scroll
	TouchStart
)

// Defaults.
const (
	DefaultThreshold = 15 * time.Minute
	DefaultWarning   = 30 * time.Second
)

// Notices.
const (
	MsgWarning     = "Session will expire soon due to inactivity."
	MsgWarningHint = "Move your mouse or press a key to stay logged in."
	MsgExpired     = "Session expired due to inactivity."
)

// Session is the part of the session controller the monitor needs.
type Session interface {
	Subscribe(fn func(session.State)) (cancel func())
	Logout()
}

// Monitor keeps one warning timer and one logout timer armed while the
// session is authenticated. Any Signal re-arms both.
type Monitor struct {
	sess      Session
	sched     Scheduler
	notifier  notify.Notifier
	threshold time.Duration
	lead      time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	active  bool
	gen     uint64
	warn    Timer
	logout  Timer
	stopped bool
}

// NewMonitor constructs a Monitor. lead is how long before threshold the
// warning is shown.
func NewMonitor(sess Session, sched Scheduler, n notify.Notifier, threshold, lead time.Duration, log *zap.Logger) *Monitor {
	if sched == nil {
		sched = RealScheduler()
	}
	if n == nil {
		n = notify.Discard
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if lead < 0 || lead >= threshold {
		lead = min(DefaultWarning, threshold/2)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{sess: sess, sched: sched, notifier: n, threshold: threshold, lead: lead, log: log}
}

// Start observes the session until the returned function is called.
func (m *Monitor) Start() (stop func()) {
	m.mu.Lock()
	m.stopped = false
	m.mu.Unlock()

	unsub := m.sess.Subscribe(m.onState)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			m.mu.Lock()
			m.stopped = true
			m.active = false
			m.disarmLocked()
			m.mu.Unlock()
		})
	}
}

// Signal records an interaction. It is ignored unless the session is authenticated.
func (m *Monitor) Signal(Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		m.armLocked()
	}
}

// Active reports whether timers are armed.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Monitor) onState(st session.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if st.Status == session.Authenticated {
		if !m.active {
			m.active = true
			m.armLocked()
		}
		return
	}
	m.active = false
	m.disarmLocked()
}

// armLocked replaces the current timer pair.
func (m *Monitor) armLocked() {
	m.disarmLocked()
	gen := m.gen
	m.warn = m.sched.AfterFunc(m.threshold-m.lead, func() { m.fireWarning(gen) })
	m.logout = m.sched.AfterFunc(m.threshold, func() { m.fireLogout(gen) })
}

// disarmLocked stops both timers; the generation bump discards callbacks
// whose timer fired concurrently with Stop.
func (m *Monitor) disarmLocked() {
	m.gen++
	if m.warn != nil {
		m.warn.Stop()
		m.warn = nil
	}
	if m.logout != nil {
		m.logout.Stop()
		m.logout = nil
	}
}

func (m *Monitor) fireWarning(gen uint64) {
	m.mu.Lock()
	live := m.active && gen == m.gen
	m.mu.Unlock()
	if !live {
		return
	}
	notify.Warn(m.notifier, MsgWarning, MsgWarningHint)
}

func (m *Monitor) fireLogout(gen uint64) {
	m.mu.Lock()
	if !m.active || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.disarmLocked()
	m.mu.Unlock()

	m.log.Info("idle timeout", zap.Duration("threshold", m.threshold))
	m.sess.Logout()
	notify.Error(m.notifier, MsgExpired)
}
