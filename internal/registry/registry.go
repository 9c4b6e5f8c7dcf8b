// Package registry implements the Stream Registry: the authoritative map of
// provisioned streams keyed by (tenantId, cameraId), grounded in the
// teacher's pkg/models/streams.go shape and guarded the way the teacher
// guards its in-process maps in api_sidecar/internal/handlers/poller.go.
package registry

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// Status values for a stream entry.
const (
	StatusProvisioning = "provisioning"
	StatusReady        = "ready"
	StatusStopped      = "stopped"
)

// Connectivity values for a stream's health.
const (
	ConnectivityOnline   = "online"
	ConnectivityDegraded = "degraded"
	ConnectivityOffline  = "offline"
)

// Transport values accepted for a stream source.
const (
	TransportAuto = "auto"
	TransportTCP  = "tcp"
	TransportUDP  = "udp"
)

// Source describes how a camera's raw stream should be pulled.
type Source struct {
	Transport      string   `json:"transport"`
	CodecHint      string   `json:"codecHint"`
	TargetProfiles []string `json:"targetProfiles"`
}

// Equal reports whether two sources are deeply equal, treating
// TargetProfiles as an ordered sequence — reordering counts as a change.
func (s Source) Equal(other Source) bool {
	if s.Transport != other.Transport || s.CodecHint != other.CodecHint {
		return false
	}
	return reflect.DeepEqual(s.TargetProfiles, other.TargetProfiles)
}

// Health is the outcome of the most recent probe of a stream.
type Health struct {
	Connectivity  string   `json:"connectivity"`
	LatencyMs     *float64 `json:"latencyMs,omitempty"`
	PacketLossPct *float64 `json:"packetLossPct,omitempty"`
	JitterMs      *float64 `json:"jitterMs,omitempty"`
	Error         string   `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Entry is one provisioned (tenantId, cameraId) stream.
type Entry struct {
	TenantID  string    `json:"tenantId"`
	CameraID  string    `json:"cameraId"`
	RTSPUrl   string    `json:"rtspUrl"`
	Source    Source    `json:"source"`
	Version   int       `json:"version"`
	Status    string    `json:"status"`
	Health    Health    `json:"health"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type key struct {
	tenantID string
	cameraID string
}

// AssetProducer materializes the stream's playable assets on disk. Upsert
// invokes it on every create or reprovision, before promoting the entry to
// ready, matching spec's "ensure assets, then ready" upsert sequence. The
// Probe Loop's provisioning -> ready promotion does not invoke it.
type AssetProducer interface {
	Ensure(tenantID, cameraID string) error
}

// Registry is the concurrency-safe, in-memory Stream Registry.
type Registry struct {
	mu      sync.Mutex
	entries map[key]*Entry
	assets  AssetProducer
	now     func() time.Time
}

// New constructs a Registry backed by the given asset producer.
func New(assets AssetProducer) *Registry {
	return &Registry{
		entries: make(map[key]*Entry),
		assets:  assets,
		now:     time.Now,
	}
}

// UpsertResult is the outcome of Upsert.
type UpsertResult struct {
	Entry         Entry
	Reprovisioned bool
}

// Upsert creates or reprovisions the stream at (tenantID, cameraID). See
// spec §4.1 for the full idempotency/versioning contract.
func (r *Registry) Upsert(tenantID, cameraID, rtspURL string, source Source) (UpsertResult, error) {
	k := key{tenantID, cameraID}

	r.mu.Lock()
	existing, ok := r.entries[k]
	if ok && existing.RTSPUrl == rtspURL && existing.Source.Equal(source) {
		result := *existing
		r.mu.Unlock()
		return UpsertResult{Entry: result, Reprovisioned: false}, nil
	}

	version := 1
	if ok {
		version = existing.Version + 1
	}

	entry := &Entry{
		TenantID: tenantID,
		CameraID: cameraID,
		RTSPUrl:  rtspURL,
		Source:   source,
		Version:  version,
		Status:   StatusProvisioning,
		Health: Health{
			Connectivity: ConnectivityDegraded,
			Error:        "provisioning",
			CheckedAt:    r.now(),
		},
		UpdatedAt: r.now(),
	}
	r.entries[k] = entry
	r.mu.Unlock()

	if r.assets != nil {
		if err := r.assets.Ensure(tenantID, cameraID); err != nil {
			return UpsertResult{}, err
		}
	}

	r.mu.Lock()
	entry.Status = StatusReady
	entry.Health = Health{Connectivity: ConnectivityOnline, CheckedAt: r.now()}
	entry.UpdatedAt = r.now()
	result := *entry
	r.mu.Unlock()

	return UpsertResult{Entry: result, Reprovisioned: true}, nil
}

// MarkStopped deprovisions a stream. Reports whether an entry existed.
func (r *Registry) MarkStopped(tenantID, cameraID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key{tenantID, cameraID}]
	if !ok {
		return false
	}
	entry.Status = StatusStopped
	entry.Health = Health{Connectivity: ConnectivityOffline, Error: "deprovisioned", CheckedAt: r.now()}
	entry.UpdatedAt = r.now()
	return true
}

// Get returns a copy of the entry at (tenantID, cameraID), if any.
func (r *Registry) Get(tenantID, cameraID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key{tenantID, cameraID}]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Iterate returns a snapshot of every entry, sorted by (tenantID, cameraID)
// for deterministic iteration order.
func (r *Registry) Iterate() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].CameraID < out[j].CameraID
	})
	return out
}

// UpdateProbe applies mutator to the live entry at (tenantID, cameraID)
// under lock, used by the Probe Loop to apply one probe transform per tick.
func (r *Registry) UpdateProbe(tenantID, cameraID string, mutator func(*Entry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key{tenantID, cameraID}]
	if !ok {
		return false
	}
	mutator(entry)
	return true
}

// Counts returns the number of entries per status, for /metrics.
func (r *Registry) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[string]int{StatusProvisioning: 0, StatusReady: 0, StatusStopped: 0}
	for _, entry := range r.entries {
		counts[entry.Status]++
	}
	return counts
}

// ConnectivityCounts returns the number of entries per connectivity value,
// for /metrics.
func (r *Registry) ConnectivityCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[string]int{ConnectivityOnline: 0, ConnectivityDegraded: 0, ConnectivityOffline: 0}
	for _, entry := range r.entries {
		counts[entry.Health.Connectivity]++
	}
	return counts
}

// Len returns the total number of provisioned entries (including stopped
// ones, which are retained rather than deleted).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
