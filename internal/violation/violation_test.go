package violation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/podguard/internal/model"
)

func TestThresholdsLevel(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		count int
		want  model.Escalation
	}{
		{0, model.EscalationNone},
		{1, model.EscalationWarn},
		{2, model.EscalationWarn},
		{3, model.EscalationBlock},
		{5, model.EscalationTerminate},
		{9, model.EscalationTerminate},
		{10, model.EscalationSuspend},
		{250, model.EscalationSuspend},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Level(tt.count), "count %d", tt.count)
	}
}

func TestThresholdsDisabledStep(t *testing.T) {
	th := Thresholds{Warn: 1, Block: 2}
	assert.Equal(t, model.EscalationBlock, th.Level(100))
	assert.Equal(t, model.EscalationNone, Thresholds{}.Level(100))
}

func TestMemoryCounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.RecordViolation(ctx, &model.SecurityViolation{ID: "v1", SessionID: "s1", Type: model.ViolationPrint}))
	require.NoError(t, m.RecordViolation(ctx, &model.SecurityViolation{ID: "v2", SessionID: "s1", Type: model.ViolationUSBDevice}))
	require.NoError(t, m.RecordViolation(ctx, &model.SecurityViolation{ID: "v3", SessionID: "s2", Type: model.ViolationPrint}))

	n, err := m.SessionViolationCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, m.List("s2"), 1)
	assert.Len(t, m.List(""), 3)
}
