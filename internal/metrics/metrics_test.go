package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnclabs/deal/internal/models/deal"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.ObserveLosses([3]float64{0.5, 0.25, -0.1})
	c.ObserveStep(3 * time.Millisecond)
	c.ObserveStep(time.Millisecond)
	c.ObserveEpoch()
	c.ObserveEval("val", deal.EvalResult{AUC: 0.9, AP: 0.8})

	assert.Equal(t, 0.25, testutil.ToFloat64(c.Loss.WithLabelValues("attr")))
	assert.Equal(t, -0.1, testutil.ToFloat64(c.Loss.WithLabelValues("align")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Epochs))
	assert.Equal(t, 0.9, testutil.ToFloat64(c.EvalAUC.WithLabelValues("val")))
	assert.Equal(t, 0.8, testutil.ToFloat64(c.EvalAP.WithLabelValues("val")))

	expected := `
# HELP deal_epochs_total Completed training epochs
# TYPE deal_epochs_total counter
deal_epochs_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "deal_epochs_total"))

	count, err := testutil.GatherAndCount(reg, "deal_step_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
