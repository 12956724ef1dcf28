package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDecisionCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(Decisions.WithLabelValues("clipboard", "deny"))
	Decisions.WithLabelValues("clipboard", "deny").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Decisions.WithLabelValues("clipboard", "deny")))
}

func TestViolationLabelCardinality(t *testing.T) {
	Violations.Reset()
	defer Violations.Reset()

	Violations.WithLabelValues("CLIPBOARD_COPY_ATTEMPT").Add(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(Violations.WithLabelValues("CLIPBOARD_COPY_ATTEMPT")))
	assert.Equal(t, 1, testutil.CollectAndCount(Violations))
}
