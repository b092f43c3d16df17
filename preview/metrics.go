package preview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	previewSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "showcase",
		Subsystem: "preview",
		Name:      "subscribers",
		Help:      "Number of connected preview websocket subscribers.",
	})

	envelopesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "preview",
		Name:      "envelopes_published_total",
		Help:      "Total envelopes published to preview subscribers, by type.",
	}, []string{"type"})

	envelopesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "preview",
		Name:      "envelopes_dropped_total",
		Help:      "Total envelopes dropped for slow subscribers, by type.",
	}, []string{"type"})

	sandboxReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "preview",
		Name:      "sandbox_reports_total",
		Help:      "Total console and error reports received from sandboxes, by type.",
	}, []string{"type"})

	previewEdits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "showcase",
		Subsystem: "preview",
		Name:      "edits_total",
		Help:      "Total user file edits applied to previews.",
	})
)
