package oracle

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

// Event is a notification published once per admin state change.
type Event interface {
	EventName() string
	Fields() log.Fields
}

type PriceFeedIDUpdated struct {
	Asset  common.Address
	FeedID common.Hash
}

func (e PriceFeedIDUpdated) EventName() string { return "PriceFeedIdUpdated" }
func (e PriceFeedIDUpdated) Fields() log.Fields {
	return log.Fields{"asset": e.Asset.Hex(), "feed_id": e.FeedID.Hex()}
}

type PairIndexUpdated struct {
	Asset     common.Address
	PairIndex uint64
}

func (e PairIndexUpdated) EventName() string { return "PairIndexUpdated" }
func (e PairIndexUpdated) Fields() log.Fields {
	return log.Fields{"asset": e.Asset.Hex(), "pair_index": e.PairIndex}
}

type FallbackOracleUpdated struct {
	Emitter string
	Oracle  types.PriceOracle
}

func (e FallbackOracleUpdated) EventName() string { return "FallbackOracleUpdated" }
func (e FallbackOracleUpdated) Fields() log.Fields {
	return log.Fields{"emitter": e.Emitter, "fallback": types.Describe(e.Oracle)}
}

type StalenessThresholdSet struct {
	Threshold time.Duration
}

func (e StalenessThresholdSet) EventName() string { return "StalenessThresholdSet" }
func (e StalenessThresholdSet) Fields() log.Fields {
	return log.Fields{"threshold": e.Threshold.String()}
}

type SourceFeedUpdated struct {
	Emitter string
	Source  interface{}
}

func (e SourceFeedUpdated) EventName() string { return "SourceFeedUpdated" }
func (e SourceFeedUpdated) Fields() log.Fields {
	return log.Fields{"emitter": e.Emitter, "source": types.Describe(e.Source)}
}

// EventSink receives published notifications. Publish must not block on I/O
// for long, it runs while the publishing oracle holds its writer lock.
type EventSink interface {
	Publish(ev Event)
}

// NopSink drops all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// MultiSink fans out events to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Publish(ev Event) {
	for _, sink := range m {
		sink.Publish(ev)
	}
}

// LogSink writes one structured log line per event.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{
		logger: logger,
	}
}

func (s *LogSink) Publish(ev Event) {
	s.logger.WithFields(ev.Fields()).Infoln(ev.EventName())
}

// MetricsSink counts events per name.
type MetricsSink struct {
	svcTags metrics.Tags
}

func NewMetricsSink(svcTags metrics.Tags) *MetricsSink {
	return &MetricsSink{
		svcTags: svcTags,
	}
}

func (m *MetricsSink) Publish(ev Event) {
	name := fmt.Sprintf("price_oracle.event.%s.count", strings.ToLower(ev.EventName()))
	metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
		s.Count(name, 1, tagSpec, 1)
	}, m.svcTags)
}

// RecordedEvent is an event with the time it was published.
type RecordedEvent struct {
	Event
	Seq  uint64
	Time time.Time
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.RWMutex
	events []RecordedEvent
	limit  int
	seq    uint64
	now    types.Clock
}

// NewRecorder returns a recorder keeping at most limit events; limit <= 0 keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		limit: limit,
		now:   time.Now,
	}
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.events = append(r.events, RecordedEvent{
		Event: ev,
		Seq:   r.seq,
		Time:  r.now(),
	})

	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]RecordedEvent(nil), r.events[len(r.events)-r.limit:]...)
	}
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns recorded event names, oldest first.
func (r *Recorder) Names() []string {
	events := r.Events()
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.EventName())
	}
	return names
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
