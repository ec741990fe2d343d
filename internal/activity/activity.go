// Package activity implements the Stream Activity Bus: a per-configuration
// record of the most recently playing stream, an SSE-style local fan-out,
// and an optional Redis-backed cross-instance broadcast. Grounded on the
// teacher's scheduler idiom for the heartbeat task and on spec.md §4.6.
package activity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"subtrans/backend/internal/logger"
	"subtrans/backend/internal/scheduler"
)

// ErrMissingConfigHash is returned by Record when no config hash is given.
var ErrMissingConfigHash = errors.New("activity: missing config hash")

// ErrTooManySubscribers is returned by Subscribe once a config hash's
// subscriber cap is reached.
var ErrTooManySubscribers = errors.New("activity: too many subscribers for this configuration, retry shortly")

// placeholderVideoIDs is the closed, case-insensitive sentinel set that
// never counts as real playback information.
var placeholderVideoIDs = map[string]bool{
	"":                   true,
	"stream and refresh": true,
	"stream & refresh":   true,
	"unknown":            true,
	"unknown title":      true,
}

func isPlaceholder(videoID string) bool {
	return placeholderVideoIDs[strings.ToLower(strings.TrimSpace(videoID))]
}

// Record is the latest known activity for one configuration.
type Record struct {
	VideoID      string
	Filename     string
	VideoHash    string
	ExternalHash string
	UpdatedAt    time.Time
}

// RecordInput is the payload passed to Record.
type RecordInput struct {
	VideoID      string
	Filename     string
	VideoHash    string
	ExternalHash string
}

// Event is what a Sink receives: an SSE-style named event carrying a JSON-
// serializable payload.
type Event struct {
	Name string
	Data any
}

// Sink is anything that can receive a sequence of named events; the HTTP
// layer adapts this to the wire SSE frame format.
type Sink interface {
	Send(Event) error
}

// Config holds the bus's tunables, sourced from internal/config.
type Config struct {
	MaxListenersPerConfig int
	HeartbeatInterval     time.Duration
	MaxConnAge            time.Duration
	HeartbeatLogInterval  time.Duration
	// RecordTTL bounds how long a latest-activity entry with no subscribers
	// is retained; zero disables pruning.
	RecordTTL time.Duration
}

// DefaultConfig returns spec.md §4.6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxListenersPerConfig: 4,
		HeartbeatInterval:     40 * time.Second,
		MaxConnAge:            time.Hour,
		HeartbeatLogInterval:  5 * time.Minute,
	}
}

type subscriber struct {
	id          string
	sink        Sink
	createdAt   time.Time
	lastEventAt time.Time
	closed      bool
}

// Bus is the Stream Activity Bus: the latest-activity map and subscriber
// sets are in-memory only and owned by a single Bus instance per process.
type Bus struct {
	cfg Config

	mu          sync.Mutex
	latest      map[string]Record
	subscribers map[string][]*subscriber

	instanceID string
	heartbeat  *scheduler.Scheduler

	lastHeartbeatLog time.Time

	broadcast broadcaster
}

// broadcaster is the cross-instance fan-out seam; a no-op implementation is
// used when Redis is not configured (spec.md §4.6.3 "degrades to
// single-instance behavior").
type broadcaster interface {
	publish(ctx context.Context, configHash string, rec Record)
	close()
}

// New constructs a Bus with local fan-out only. Call EnableRedis to add
// cross-instance broadcast.
func New(cfg Config) *Bus {
	if cfg.MaxListenersPerConfig <= 0 {
		cfg.MaxListenersPerConfig = DefaultConfig().MaxListenersPerConfig
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.MaxConnAge <= 0 {
		cfg.MaxConnAge = DefaultConfig().MaxConnAge
	}
	if cfg.HeartbeatLogInterval <= 0 {
		cfg.HeartbeatLogInterval = DefaultConfig().HeartbeatLogInterval
	}

	b := &Bus{
		cfg:         cfg,
		latest:      make(map[string]Record),
		subscribers: make(map[string][]*subscriber),
		instanceID:  uuid.NewString(),
		broadcast:   noopBroadcaster{},
	}
	b.heartbeat = scheduler.New("stream-activity-heartbeat", cfg.HeartbeatInterval, b.heartbeatTick)
	return b
}

// Start begins the heartbeat task.
func (b *Bus) Start() { b.heartbeat.Start() }

// Stop halts the heartbeat task and disconnects any cross-instance
// broadcaster.
func (b *Bus) Stop() {
	b.heartbeat.Stop()
	b.broadcast.close()
}

// Record applies the merge/placeholder rules of spec.md §4.6.1 and, on a
// genuine change, fans the new record out locally and publishes it for
// cross-instance delivery.
func (b *Bus) Record(configHash string, in RecordInput) error {
	if configHash == "" {
		return ErrMissingConfigHash
	}

	b.mu.Lock()
	prior, hadPrior := b.latest[configHash]
	merged, changed := mergeRecord(prior, hadPrior, in)
	if merged == nil {
		b.mu.Unlock()
		return nil
	}
	b.latest[configHash] = *merged
	subs := append([]*subscriber(nil), b.subscribers[configHash]...)
	b.mu.Unlock()

	if !changed {
		return nil
	}

	logger.Info("stream activity recorded", "module", "activity", "action", "record", "resource", "stream", "result", "ok", "config_hash", configHash, "video_id", merged.VideoID)

	b.emitEpisode(configHash, *merged, subs)
	b.broadcast.publish(context.Background(), configHash, *merged)
	return nil
}

// applyRemote stores a record received from another instance as the latest
// record, replacing any local one, and fans it out to local subscribers
// without re-publishing it (remote messages are not re-broadcast).
func (b *Bus) applyRemote(configHash string, rec Record) {
	b.mu.Lock()
	b.latest[configHash] = rec
	subs := append([]*subscriber(nil), b.subscribers[configHash]...)
	b.mu.Unlock()

	b.emitEpisode(configHash, rec, subs)
}

func mergeRecord(prior Record, hadPrior bool, in RecordInput) (*Record, bool) {
	placeholder := isPlaceholder(in.VideoID)

	if !hadPrior && placeholder {
		return nil, false
	}

	meaningfulNewFields := in.Filename != "" || in.VideoHash != "" || in.ExternalHash != "" ||
		(hadPrior && in.VideoID != prior.VideoID)

	if hadPrior && (placeholder || !meaningfulNewFields) {
		heartbeatRecord := prior
		heartbeatRecord.UpdatedAt = time.Now()
		return &heartbeatRecord, false
	}

	rec := Record{VideoID: in.VideoID, UpdatedAt: time.Now()}
	sameVideo := hadPrior && prior.VideoID == in.VideoID

	rec.Filename = in.Filename
	if rec.Filename == "" && sameVideo {
		rec.Filename = prior.Filename
	}
	rec.VideoHash = in.VideoHash
	if rec.VideoHash == "" && sameVideo {
		rec.VideoHash = prior.VideoHash
	}
	rec.ExternalHash = in.ExternalHash
	if rec.ExternalHash == "" && sameVideo {
		rec.ExternalHash = prior.ExternalHash
	}

	changed := !hadPrior ||
		rec.VideoID != prior.VideoID ||
		rec.Filename != prior.Filename ||
		rec.VideoHash != prior.VideoHash ||
		rec.ExternalHash != prior.ExternalHash

	return &rec, changed
}

func (b *Bus) emitEpisode(configHash string, rec Record, subs []*subscriber) {
	for _, sub := range subs {
		b.send(configHash, sub, Event{Name: "episode", Data: rec})
	}
}

// Subscribe registers sink under configHash, enforcing the per-configuration
// cap. On accept, the sink synchronously receives a ready event followed by
// an episode event for the current record, if any. The returned cancel is
// idempotent.
func (b *Bus) Subscribe(configHash string, sink Sink) (cancel func(), err error) {
	now := time.Now()
	sub := &subscriber{id: uuid.NewString(), sink: sink, createdAt: now, lastEventAt: now}

	b.mu.Lock()
	if len(b.subscribers[configHash]) >= b.cfg.MaxListenersPerConfig {
		b.mu.Unlock()
		return nil, ErrTooManySubscribers
	}
	b.subscribers[configHash] = append(b.subscribers[configHash], sub)
	current, hasCurrent := b.latest[configHash]
	b.mu.Unlock()

	if err := sink.Send(Event{Name: "ready"}); err != nil {
		b.removeSubscriber(configHash, sub)
		return nil, err
	}
	if hasCurrent {
		if err := sink.Send(Event{Name: "episode", Data: current}); err != nil {
			b.removeSubscriber(configHash, sub)
			return nil, err
		}
	}

	var once sync.Once
	cancel = func() {
		once.Do(func() { b.removeSubscriber(configHash, sub) })
	}
	return cancel, nil
}

func (b *Bus) removeSubscriber(configHash string, target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[configHash]
	for i, sub := range subs {
		if sub == target {
			b.subscribers[configHash] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[configHash]) == 0 {
		delete(b.subscribers, configHash)
	}
}

func (b *Bus) send(configHash string, sub *subscriber, ev Event) {
	if err := sub.sink.Send(ev); err != nil {
		b.removeSubscriber(configHash, sub)
		return
	}
	sub.lastEventAt = time.Now()
}

// heartbeatTick pings every live subscriber, pruning those whose writes
// fail or whose age exceeds MaxConnAge, and prunes stale latest-activity
// entries that have no subscribers. It logs a summary at most once per
// HeartbeatLogInterval.
func (b *Bus) heartbeatTick(ctx context.Context) error {
	b.mu.Lock()
	snapshot := make(map[string][]*subscriber, len(b.subscribers))
	for cfg, subs := range b.subscribers {
		snapshot[cfg] = append([]*subscriber(nil), subs...)
	}
	b.mu.Unlock()

	now := time.Now()
	var pinged, pruned int32

	g, gctx := errgroup.WithContext(ctx)
	for configHash, subs := range snapshot {
		configHash, subs := configHash, subs
		g.Go(func() error {
			for _, sub := range subs {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if now.Sub(sub.createdAt) > b.cfg.MaxConnAge {
					b.removeSubscriber(configHash, sub)
					atomic.AddInt32(&pruned, 1)
					continue
				}
				if err := sub.sink.Send(Event{Name: "ping"}); err != nil {
					b.removeSubscriber(configHash, sub)
					atomic.AddInt32(&pruned, 1)
					continue
				}
				sub.lastEventAt = now
				atomic.AddInt32(&pinged, 1)
			}
			return nil
		})
	}
	// One config group's ping sweep never depends on another's outcome,
	// so a context cancellation only stops in-flight groups early; it is
	// not treated as a tick failure.
	_ = g.Wait()

	if b.cfg.RecordTTL > 0 {
		b.pruneStaleRecords(now)
	}

	if now.Sub(b.lastHeartbeatLog) >= b.cfg.HeartbeatLogInterval {
		b.lastHeartbeatLog = now
		logger.Info("stream activity heartbeat", "module", "activity", "action", "heartbeat", "resource", "subscriber", "result", "ok", "pinged", pinged, "pruned", pruned)
	}
	return nil
}

func (b *Bus) pruneStaleRecords(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cfg, rec := range b.latest {
		if len(b.subscribers[cfg]) > 0 {
			continue
		}
		if now.Sub(rec.UpdatedAt) > b.cfg.RecordTTL {
			delete(b.latest, cfg)
		}
	}
}

// Get returns the current latest record for configHash, if any. No HTTP
// handler exposes it.
func (b *Bus) Get(configHash string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.latest[configHash]
	return rec, ok
}

type noopBroadcaster struct{}

func (noopBroadcaster) publish(context.Context, string, Record) {}
func (noopBroadcaster) close()                                  {}
