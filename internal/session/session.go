// Package session implements the Session Manager and its Sweep Loop
// (spec §4.4): the authoritative map of playback sessions and the state
// machine issued -> active -> {ended, expired}. The sweep loop's
// ticker+stop-channel shape and jittered start follow the teacher's
// cleanup monitor pattern in api_sidecar/internal/handlers/cleanup.go.
package session

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/nearhome/streamgate/internal/logging"
)

// Status values for a session.
const (
	StatusIssued  = "issued"
	StatusActive  = "active"
	StatusEnded   = "ended"
	StatusExpired = "expired"
)

// End reasons recorded alongside a terminal transition.
const (
	ReasonIdleTimeout  = "idle_timeout"
	ReasonTokenExpired = "token_expired"
	ReasonDeprovision  = "deprovisioned"
	ReasonCaller       = "ended"
)

// Entry is one playback session, identified by (tenantID, cameraID, sid).
type Entry struct {
	TenantID    string     `json:"tenantId"`
	CameraID    string     `json:"cameraId"`
	SID         string     `json:"sid"`
	Sub         string     `json:"sub"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issuedAt"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	LastSeenAt  time.Time  `json:"lastSeenAt"`
	EndReason   string     `json:"endReason,omitempty"`
}

type key struct {
	tenantID string
	cameraID string
	sid      string
}

// ErrSessionClosed is returned by Observe when the session has already
// reached a terminal state.
type ErrSessionClosed struct{}

func (ErrSessionClosed) Error() string { return "session closed" }

// Manager owns the session map.
type Manager struct {
	mu       sync.Mutex
	sessions map[key]*Entry
	now      func() time.Time

	sweepCount int
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		sessions: make(map[key]*Entry),
		now:      time.Now,
	}
}

// Observe is called by the HTTP Surface after token verification succeeds
// and before serving an asset. See spec §4.4 for the full contract.
func (m *Manager) Observe(tenantID, cameraID, sid, sub string, issuedAtEpoch, expiresAtEpoch int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{tenantID, cameraID, sid}
	entry, ok := m.sessions[k]
	now := m.now()

	if !ok {
		m.sessions[k] = &Entry{
			TenantID:    tenantID,
			CameraID:    cameraID,
			SID:         sid,
			Sub:         sub,
			Status:      StatusActive,
			IssuedAt:    time.Unix(issuedAtEpoch, 0).UTC(),
			ActivatedAt: timePtr(now),
			ExpiresAt:   time.Unix(expiresAtEpoch, 0).UTC(),
			LastSeenAt:  now,
		}
		return nil
	}

	switch entry.Status {
	case StatusIssued, StatusActive:
		entry.Status = StatusActive
		entry.LastSeenAt = now
		if entry.ActivatedAt == nil {
			entry.ActivatedAt = timePtr(now)
		}
		return nil
	default:
		return ErrSessionClosed{}
	}
}

// SweepResult reports how many sessions a sweep pass transitioned.
type SweepResult struct {
	Expired int
	Ended   int
}

// Sweep performs a single pass over every non-terminal session.
func (m *Manager) Sweep(idleTTL time.Duration) SweepResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var result SweepResult

	for _, entry := range m.sessions {
		switch entry.Status {
		case StatusEnded, StatusExpired:
			continue
		}

		if !entry.ExpiresAt.After(now) {
			entry.Status = StatusExpired
			entry.EndedAt = timePtr(now)
			entry.EndReason = ReasonTokenExpired
			result.Expired++
			continue
		}

		if entry.Status == StatusActive && now.Sub(entry.LastSeenAt) > idleTTL {
			entry.Status = StatusEnded
			entry.EndedAt = timePtr(now)
			entry.EndReason = ReasonIdleTimeout
			result.Ended++
		}
	}

	m.sweepCount++
	return result
}

// CloseForStream marks every non-terminal session for (tenantID, cameraID)
// as ended with the given reason, used on deprovision.
func (m *Manager) CloseForStream(tenantID, cameraID, reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	closed := 0
	for _, entry := range m.sessions {
		if entry.TenantID != tenantID || entry.CameraID != cameraID {
			continue
		}
		if entry.Status == StatusEnded || entry.Status == StatusExpired {
			continue
		}
		entry.Status = StatusEnded
		entry.EndedAt = timePtr(now)
		entry.EndReason = reason
		closed++
	}
	return closed
}

// Filter selects sessions for List.
type Filter struct {
	TenantID string
	CameraID string
	Status   string
	SID      string
}

func (f Filter) matches(e *Entry) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.CameraID != "" && e.CameraID != f.CameraID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.SID != "" && e.SID != f.SID {
		return false
	}
	return true
}

// List returns every session matching filter, sorted by lastSeenAt
// descending.
func (m *Manager) List(filter Filter) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0)
	for _, entry := range m.sessions {
		if filter.matches(entry) {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out
}

// Counts returns the number of sessions per status, for /metrics.
func (m *Manager) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[string]int{StatusIssued: 0, StatusActive: 0, StatusEnded: 0, StatusExpired: 0}
	for _, entry := range m.sessions {
		counts[entry.Status]++
	}
	return counts
}

// Len returns the total number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func timePtr(t time.Time) *time.Time { return &t }

// SweepLoop runs Sweep at a configurable interval in the background.
type SweepLoop struct {
	manager  *Manager
	interval time.Duration
	idleTTL  time.Duration
	logger   logging.Logger
	onSweep  func(SweepResult)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweepLoop constructs a SweepLoop. onSweep, if non-nil, is invoked with
// the result of every pass (used to drive the sweep-count metric).
func NewSweepLoop(manager *Manager, interval, idleTTL time.Duration, logger logging.Logger, onSweep func(SweepResult)) *SweepLoop {
	return &SweepLoop{
		manager:  manager,
		interval: interval,
		idleTTL:  idleTTL,
		logger:   logger,
		onSweep:  onSweep,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine. The first tick is
// jittered by a few hundred milliseconds, derived once at startup, so this
// loop's ticks don't permanently align with the probe loop's in a
// single-process deployment.
func (s *SweepLoop) Start() {
	jitter := time.Duration(rand.Intn(300)) * time.Millisecond

	go func() {
		defer close(s.doneCh)

		select {
		case <-s.stopCh:
			return
		case <-time.After(jitter):
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				result := s.manager.Sweep(s.idleTTL)
				if s.onSweep != nil {
					s.onSweep(result)
				}
				if s.logger != nil && (result.Expired > 0 || result.Ended > 0) {
					s.logger.WithFields(logging.Fields{
						"expired": result.Expired,
						"ended":   result.Ended,
					}).Info("session sweep")
				}
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to finish.
func (s *SweepLoop) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
