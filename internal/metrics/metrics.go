// Package metrics exposes training progress as prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cnclabs/deal/internal/models/deal"
)

const namespace = "deal"

var lossTerms = [3]string{"node", "attr", "align"}

// Collector records trainer progress. It implements deal.Recorder.
type Collector struct {
	Loss        *prometheus.GaugeVec
	EvalAUC     *prometheus.GaugeVec
	EvalAP      *prometheus.GaugeVec
	Epochs      prometheus.Counter
	StepSeconds prometheus.Histogram
}

var _ deal.Recorder = (*Collector)(nil)

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loss",
			Help:      "Weighted loss terms of the last training batch",
		}, []string{"term"}),
		EvalAUC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eval_auc",
			Help:      "ROC-AUC of the last evaluation",
		}, []string{"split"}),
		EvalAP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eval_ap",
			Help:      "Average precision of the last evaluation",
		}, []string{"split"}),
		Epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Completed training epochs",
		}),
		StepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_seconds",
			Help:      "Duration of one forward, backward and optimizer step",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}

	for _, col := range []prometheus.Collector{c.Loss, c.EvalAUC, c.EvalAP, c.Epochs, c.StepSeconds} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveLosses sets the per-term loss gauges
func (c *Collector) ObserveLosses(losses [3]float64) {
	for i, term := range lossTerms {
		c.Loss.WithLabelValues(term).Set(losses[i])
	}
}

// ObserveStep records one optimization step
func (c *Collector) ObserveStep(d time.Duration) {
	c.StepSeconds.Observe(d.Seconds())
}

// ObserveEpoch counts a finished epoch
func (c *Collector) ObserveEpoch() {
	c.Epochs.Inc()
}

// ObserveEval sets the ranking gauges of split
func (c *Collector) ObserveEval(split string, res deal.EvalResult) {
	c.EvalAUC.WithLabelValues(split).Set(res.AUC)
	c.EvalAP.WithLabelValues(split).Set(res.AP)
}
