// Package metrics exposes Prometheus collectors for the pipeline,
// attached through lifecycle hooks so the executor stays metrics-free.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veloir/stagehand/pkg/domain"
)

// Collectors aggregates the pipeline metrics.
type Collectors struct {
	StageVisits  *prometheus.CounterVec
	TraceAppends prometheus.Counter
	TurnDuration *prometheus.HistogramVec
}

// NewCollectors creates and registers the collectors on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		StageVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagehand_stage_visits_total",
				Help: "Total number of stage executions",
			},
			[]string{"stage_id"},
		),
		TraceAppends: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stagehand_trace_appends_total",
				Help: "Total number of trace records appended",
			},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "stagehand_turn_duration_seconds",
				Help: "Duration of one pipeline turn, stage entry to trace append",
			},
			[]string{"stage_id"},
		),
	}
	reg.MustRegister(c.StageVisits, c.TraceAppends, c.TurnDuration)
	return c
}

// Hooks returns lifecycle hooks feeding the collectors, chained in
// front of next so host-supplied hooks still fire.
func (c *Collectors) Hooks(next domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			c.StageVisits.WithLabelValues(e.StageID).Inc()
			if next.OnStageEnter != nil {
				next.OnStageEnter(ctx, e)
			}
		},
		OnStageLeave: next.OnStageLeave,
		OnTraceAppend: func(ctx context.Context, e *domain.TraceEvent) {
			c.TraceAppends.Inc()
			c.TurnDuration.WithLabelValues(e.StageID).Observe(e.Duration.Seconds())
			if next.OnTraceAppend != nil {
				next.OnTraceAppend(ctx, e)
			}
		},
	}
}
