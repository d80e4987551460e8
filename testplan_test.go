package goose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePhases_LabelsIncreaseMaintainDecreaseAndAppendsShutdown(t *testing.T) {
	tp := &TestPlan{Steps: []TestPlanStep{
		{TargetUsers: 10, Duration: 10 * time.Second},
		{TargetUsers: 10, Duration: 30 * time.Second},
		{TargetUsers: 2, Duration: 8 * time.Second},
	}}

	phases := tp.derivePhases()
	require.Len(t, phases, 4)
	assert.Equal(t, PhaseIncrease, phases[0].Phase)
	assert.Equal(t, 0, phases[0].FromUsers)
	assert.Equal(t, 10, phases[0].TargetUsers)
	assert.Equal(t, PhaseMaintain, phases[1].Phase)
	assert.Equal(t, PhaseDecrease, phases[2].Phase)
	assert.Equal(t, PhaseShutdown, phases[3].Phase)
	assert.Equal(t, 2, phases[3].FromUsers)
	assert.Equal(t, 0, phases[3].TargetUsers)
}

func TestSimpleTestPlan_RampAndHoldSteps(t *testing.T) {
	tp := simpleTestPlan(10, 2.0, 30*time.Second)
	require.Len(t, tp.Steps, 2)
	assert.Equal(t, 5*time.Second, tp.Steps[0].Duration)
	assert.Equal(t, 30*time.Second, tp.Steps[1].Duration)
}

func TestSimpleTestPlan_NoRunTimeIsSingleStep(t *testing.T) {
	tp := simpleTestPlan(4, 1.0, 0)
	assert.Len(t, tp.Steps, 1)
	assert.True(t, tp.singleStep())
}

func TestParseTestPlan_ParsesMultipleSteps(t *testing.T) {
	tp, err := ParseTestPlan("10,30s;20,1m;0,5s")
	require.NoError(t, err)
	require.Len(t, tp.Steps, 3)
	assert.Equal(t, 10, tp.Steps[0].TargetUsers)
	assert.Equal(t, 30*time.Second, tp.Steps[0].Duration)
	assert.Equal(t, 20, tp.Steps[1].TargetUsers)
	assert.Equal(t, time.Minute, tp.Steps[1].Duration)
}

func TestParseTestPlan_RejectsMalformedStep(t *testing.T) {
	_, err := ParseTestPlan("10")
	assert.Error(t, err)

	_, err = ParseTestPlan("notanumber,30s")
	assert.Error(t, err)
}

func TestParseDuration_AcceptsBareIntegerAsSeconds(t *testing.T) {
	d, err := ParseDuration("90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = ParseDuration("1h30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}

func TestHatchSpacing_DividesDurationByUserDelta(t *testing.T) {
	step := PhaseStep{FromUsers: 0, TargetUsers: 10, Duration: 100 * time.Second}
	assert.Equal(t, 10*time.Second, hatchSpacing(step))

	zeroDelta := PhaseStep{FromUsers: 5, TargetUsers: 5, Duration: 30 * time.Second}
	assert.Equal(t, time.Duration(0), hatchSpacing(zeroDelta))
}
