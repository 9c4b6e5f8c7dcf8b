// Package assets implements the Asset Producer and Asset Reader (spec §4.2):
// synthetic HLS manifest/segment placeholders written to a deterministic
// path, read back with retry-with-backoff. The backoff formula is grounded
// in the teacher's pkg/clients.RetryConfig / doRetryAttempts.
package assets

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	segmentMarker = "NEARHOME_STREAM_SEGMENT"
	manifestName  = "index.m3u8"
	segmentName   = "segment0.ts"
)

// manifestTemplate is the fixed single-segment HLS placeholder per spec §6.
const manifestTemplate = "#EXTM3U\n" +
	"#EXT-X-VERSION:3\n" +
	"#EXT-X-TARGETDURATION:5\n" +
	"#EXT-X-MEDIA-SEQUENCE:0\n" +
	"#EXTINF:5.0,\n" +
	segmentName + "\n"

// Producer writes the per-stream assets to a storage root on disk.
type Producer struct {
	Root string
}

// NewProducer constructs a Producer rooted at root.
func NewProducer(root string) *Producer {
	return &Producer{Root: root}
}

func (p *Producer) streamDir(tenantID, cameraID string) string {
	return filepath.Join(p.Root, tenantID, cameraID)
}

// Ensure writes the manifest and segment for (tenantID, cameraID),
// recursively creating the directory if needed. It is idempotent and
// overwrites any pre-existing files, matching spec §5's "no exclusive
// ownership of the storage directory" contract.
func (p *Producer) Ensure(tenantID, cameraID string) error {
	dir := p.streamDir(tenantID, cameraID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(dir, segmentName), []byte(segmentMarker)); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, manifestName), []byte(manifestTemplate)); err != nil {
		return err
	}
	return nil
}

// writeFileAtomic writes via a temp file plus rename, so a concurrent reader
// observes either the previous or the next version, never a torn file.
func writeFileAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RetryPolicy configures the Asset Reader's retry-with-backoff behavior.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// delay computes the exponential backoff for the given 1-indexed attempt,
// capped at MaxDelay: base * 2^(attempt-1).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Asset identifies which placeholder file is being read, for metrics.
type Asset string

const (
	AssetManifest Asset = "manifest"
	AssetSegment  Asset = "segment"
)

// RetryCounter is incremented once per retried attempt, keyed by
// (tenantID, cameraID, asset), for the nearhome_playback_read_retries_total
// metric.
type RetryCounter func(tenantID, cameraID string, asset Asset)

// Reader reads the placeholder assets back off disk, retrying transient
// misses.
type Reader struct {
	Root    string
	Policy  RetryPolicy
	OnRetry RetryCounter

	// Limiter throttles retry attempts (not first attempts) across every
	// concurrent playback request sharing this Reader, so a burst of
	// clients hitting a batch of still-provisioning streams can't turn
	// into a retry storm against the storage directory.
	Limiter *rate.Limiter
}

// NewReader constructs a Reader rooted at root with the given retry policy.
// The retry path is throttled to retryRPS retries per second across every
// stream sharing this Reader, with a burst of retryBurst.
func NewReader(root string, policy RetryPolicy, onRetry RetryCounter, retryRPS float64, retryBurst int) *Reader {
	return &Reader{
		Root:    root,
		Policy:  policy,
		OnRetry: onRetry,
		Limiter: rate.NewLimiter(rate.Limit(retryRPS), retryBurst),
	}
}

func (r *Reader) streamDir(tenantID, cameraID string) string {
	return filepath.Join(r.Root, tenantID, cameraID)
}

// ErrNotFound is returned once the retry budget is exhausted, and at once
// for a read error that is not a transient miss.
var ErrNotFound = errors.New("asset not found")

// ReadManifest reads index.m3u8 for (tenantID, cameraID) with retry.
func (r *Reader) ReadManifest(ctx context.Context, tenantID, cameraID string) ([]byte, error) {
	return r.readWithRetry(ctx, tenantID, cameraID, AssetManifest, filepath.Join(r.streamDir(tenantID, cameraID), manifestName))
}

// ReadSegment reads segment0.ts for (tenantID, cameraID) with retry.
func (r *Reader) ReadSegment(ctx context.Context, tenantID, cameraID string) ([]byte, error) {
	return r.readWithRetry(ctx, tenantID, cameraID, AssetSegment, filepath.Join(r.streamDir(tenantID, cameraID), segmentName))
}

func (r *Reader) readWithRetry(ctx context.Context, tenantID, cameraID string, asset Asset, path string) ([]byte, error) {
	for attempt := 0; attempt <= r.Policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(r.Policy.delay(attempt), r.Policy.MaxDelay)):
			}
			if r.Limiter != nil {
				if err := r.Limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			if r.OnRetry != nil {
				r.OnRetry(tenantID, cameraID, asset)
			}
		}

		content, err := os.ReadFile(path)
		if err == nil {
			return content, nil
		}
		if !isTransientMissing(err) {
			return nil, ErrNotFound
		}
	}

	return nil, ErrNotFound
}

// jitter adds up to 10% extra delay on top of d, then re-applies maxDelay so
// the jittered sleep never exceeds the policy's cap (spec §4.2/§5: the
// per-step delay cap is a hard ceiling, not a target).
func jitter(d, maxDelay time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	jittered := d + time.Duration(rand.Int63n(int64(d)/10+1))
	if jittered > maxDelay {
		jittered = maxDelay
	}
	return jittered
}

// isTransientMissing reports whether err looks like a transient filesystem
// condition worth retrying: file not yet present, or temporarily
// unavailable/busy.
func isTransientMissing(err error) bool {
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "temporarily unavailable") ||
		strings.Contains(msg, "resource busy") ||
		strings.Contains(msg, "device or resource busy")
}

// RewriteManifest substitutes the manifest's relative segment reference with
// an absolute, token-carrying playback URL. This is a textual substitution
// performed after read, per spec §4.2 — not a manifest parse.
func RewriteManifest(manifest []byte, tenantID, cameraID, tokenQuery string) []byte {
	absolute := "/playback/" + tenantID + "/" + cameraID + "/" + segmentName + "?token=" + tokenQuery
	return []byte(strings.Replace(string(manifest), segmentName, absolute, 1))
}
