package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MirrorMetricsSet aggregates the counters the sync engine and its transports
// report. All collectors are registered against the default registry exactly
// once.
type MirrorMetricsSet struct {
	DecodeFailures *prometheus.CounterVec
	PollRuns       prometheus.Counter
	PollSkips      prometheus.Counter
	PushEvents     *prometheus.CounterVec
	Reconnects     prometheus.Counter
	QueryErrors    prometheus.Counter
	TxSubmissions  *prometheus.CounterVec
	CacheSize      *prometheus.GaugeVec
}

var (
	mirrorOnce sync.Once
	mirrorReg  *MirrorMetricsSet
)

// MirrorMetrics returns the lazily-initialised metrics registry shared by the
// cache engine, the indexer client, and the transaction submitter.
func MirrorMetrics() *MirrorMetricsSet {
	mirrorOnce.Do(func() {
		mirrorReg = &MirrorMetricsSet{
			DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "numsync",
				Subsystem: "mirror",
				Name:      "decode_failures_total",
				Help:      "Records skipped because they failed domain decoding, by model.",
			}, []string{"model"}),
			PollRuns: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "numsync",
				Subsystem: "mirror",
				Name:      "poll_runs_total",
				Help:      "Leaderboard poll ticks that issued a refresh.",
			}),
			PollSkips: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "numsync",
				Subsystem: "mirror",
				Name:      "poll_skips_total",
				Help:      "Poll ticks skipped because the consumer had scrolled past page one.",
			}),
			PushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "numsync",
				Subsystem: "mirror",
				Name:      "push_events_total",
				Help:      "Subscription push frames applied, by model.",
			}, []string{"model"}),
			Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "numsync",
				Subsystem: "client",
				Name:      "ws_reconnects_total",
				Help:      "Websocket subscription reconnect attempts.",
			}),
			QueryErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "numsync",
				Subsystem: "client",
				Name:      "query_errors_total",
				Help:      "Failed indexer queries across all call sites.",
			}),
			TxSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "numsync",
				Subsystem: "tx",
				Name:      "submissions_total",
				Help:      "Multi-call submissions by classified outcome.",
			}, []string{"outcome"}),
			CacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "numsync",
				Subsystem: "mirror",
				Name:      "cache_entries",
				Help:      "Cached records currently held, by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			mirrorReg.DecodeFailures,
			mirrorReg.PollRuns,
			mirrorReg.PollSkips,
			mirrorReg.PushEvents,
			mirrorReg.Reconnects,
			mirrorReg.QueryErrors,
			mirrorReg.TxSubmissions,
			mirrorReg.CacheSize,
		)
	})
	return mirrorReg
}
