package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
	fail   bool
}

func (s *recordingSink) Send(ev Event) error {
	if s.fail {
		return errSinkClosed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) names() []string {
	names := make([]string, len(s.events))
	for i, ev := range s.events {
		names[i] = ev.Name
	}
	return names
}

var errSinkClosed = &sinkClosedError{}

type sinkClosedError struct{}

func (*sinkClosedError) Error() string { return "sink closed" }

func newTestBus() *Bus {
	return New(Config{MaxListenersPerConfig: 4, HeartbeatInterval: time.Hour, MaxConnAge: time.Hour, HeartbeatLogInterval: time.Hour})
}

func TestRecordDropsPlaceholderWithNoPriorRecord(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "unknown"}))

	_, ok := b.Get("cfg")
	require.False(t, ok)
}

func TestRecordRejectsEmptyConfigHash(t *testing.T) {
	b := newTestBus()
	err := b.Record("", RecordInput{VideoID: "tt1:1:1"})
	require.ErrorIs(t, err, ErrMissingConfigHash)
}

func TestRecordStoresRealEntry(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "tt1:1:1", Filename: "a.mkv", VideoHash: "h1"}))

	rec, ok := b.Get("cfg")
	require.True(t, ok)
	require.Equal(t, "tt1:1:1", rec.VideoID)
	require.Equal(t, "h1", rec.VideoHash)
}

func TestRecordPlaceholderAfterRealRecordIsHeartbeatOnly(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "tt1:1:1", Filename: "a.mkv", VideoHash: "h1"}))
	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "stream and refresh"}))

	rec, ok := b.Get("cfg")
	require.True(t, ok)
	require.Equal(t, "tt1:1:1", rec.VideoID)
	require.Equal(t, "h1", rec.VideoHash)
}

func TestSubscribeCapRejectsOverLimit(t *testing.T) {
	b := newTestBus()
	b.cfg.MaxListenersPerConfig = 2

	cancel1, err := b.Subscribe("cfg", &recordingSink{})
	require.NoError(t, err)
	defer cancel1()

	cancel2, err := b.Subscribe("cfg", &recordingSink{})
	require.NoError(t, err)
	defer cancel2()

	_, err = b.Subscribe("cfg", &recordingSink{})
	require.ErrorIs(t, err, ErrTooManySubscribers)
}

func TestSubscribeReceivesReadyThenEpisodeIfPresent(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "tt1:1:1", VideoHash: "h1"}))

	sink := &recordingSink{}
	cancel, err := b.Subscribe("cfg", sink)
	require.NoError(t, err)
	defer cancel()

	require.Equal(t, []string{"ready", "episode"}, sink.names())
}

func TestSubscribeReceivesOnlyReadyWhenNoRecordYet(t *testing.T) {
	b := newTestBus()
	sink := &recordingSink{}
	cancel, err := b.Subscribe("cfg", sink)
	require.NoError(t, err)
	defer cancel()

	require.Equal(t, []string{"ready"}, sink.names())
}

func TestCancelIsIdempotentAndFreesSlot(t *testing.T) {
	b := newTestBus()
	b.cfg.MaxListenersPerConfig = 1

	sink := &recordingSink{}
	cancel, err := b.Subscribe("cfg", sink)
	require.NoError(t, err)

	cancel()
	cancel() // idempotent, must not panic

	_, err = b.Subscribe("cfg", &recordingSink{})
	require.NoError(t, err)
}

// Scenario F from spec.md §8: ready, episode(h1), episode(h2) with the
// placeholder in between emitting no episode.
func TestStreamActivitySequencingScenarioF(t *testing.T) {
	b := newTestBus()

	sink := &recordingSink{}
	cancel, err := b.Subscribe("cfg", sink)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "tt1:1:1", Filename: "a.mkv", VideoHash: "h1"}))
	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "stream and refresh"}))
	require.NoError(t, b.Record("cfg", RecordInput{VideoID: "tt1:1:2", Filename: "b.mkv", VideoHash: "h2"}))

	require.Equal(t, []string{"ready", "episode", "episode"}, sink.names())

	first := sink.events[1].Data.(Record)
	second := sink.events[2].Data.(Record)
	require.Equal(t, "h1", first.VideoHash)
	require.Equal(t, "h2", second.VideoHash)
}

func TestSubscribeRemovesSinkWhoseReadySendFails(t *testing.T) {
	b := newTestBus()
	sink := &recordingSink{fail: true}
	_, err := b.Subscribe("cfg", sink)
	require.Error(t, err) // ready send fails immediately

	b.mu.Lock()
	count := len(b.subscribers["cfg"])
	b.mu.Unlock()
	require.Equal(t, 0, count)
}

func TestHeartbeatPrunesSubscribersOverMaxAge(t *testing.T) {
	b := newTestBus()
	b.cfg.MaxConnAge = 0 // force immediate expiry

	sink := &recordingSink{}
	_, err := b.Subscribe("cfg", sink)
	require.NoError(t, err)

	require.NoError(t, b.heartbeatTick(context.Background()))

	b.mu.Lock()
	count := len(b.subscribers["cfg"])
	b.mu.Unlock()
	require.Equal(t, 0, count)
}
