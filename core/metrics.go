package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "generator",
		Name:      "turns_total",
		Help:      "Total generation turns by final state.",
	}, []string{"outcome"})

	turnRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "generator",
		Name:      "retries_total",
		Help:      "Total strict-format retries issued after a response without an artifact.",
	})

	framesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "stream",
		Name:      "frames_decoded_total",
		Help:      "Total stream frames decoded, by kind.",
	}, []string{"kind"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "stream",
		Name:      "frames_dropped_total",
		Help:      "Total malformed stream records dropped.",
	})

	parseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "showcase",
		Subsystem: "generator",
		Name:      "parse_duration_seconds",
		Help:      "Time spent parsing and assembling one streamed update.",
		Buckets:   prometheus.DefBuckets,
	})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "showcase",
		Subsystem: "generator",
		Name:      "turn_duration_seconds",
		Help:      "Wall time of generation turns.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
	})

	sessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "chat",
		Name:      "sessions_evicted_total",
		Help:      "Total chat sessions evicted because the session cap was reached.",
	})

	chatStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "chat",
		Name:      "streams_total",
		Help:      "Total chatbot streams by outcome.",
	}, []string{"outcome"})
)
