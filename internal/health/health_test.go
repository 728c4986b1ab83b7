package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStartingBeforeInitialScan(t *testing.T) {
	s := Compute(Inputs{TotalFiles: 3, Pending: 3})
	assert.Equal(t, StatusStarting, s.Status)
}

func TestComputeHealthyWhenAllSucceed(t *testing.T) {
	s := Compute(Inputs{InitialScanDone: true, TotalFiles: 10, Succeeded: 10})
	assert.Equal(t, StatusHealthy, s.Status)
	assert.True(t, s.Healthy())
}

func TestComputeDegradedOnPartialFailure(t *testing.T) {
	s := Compute(Inputs{InitialScanDone: true, TotalFiles: 10, Succeeded: 8, Failed: 2})
	assert.Equal(t, StatusDegraded, s.Status)
	assert.False(t, s.Healthy())
}

func TestComputeUnhealthyWhenNothingSucceeds(t *testing.T) {
	s := Compute(Inputs{InitialScanDone: true, TotalFiles: 4, Failed: 4})
	assert.Equal(t, StatusUnhealthy, s.Status)
}

func TestComputeUnhealthyOnUnreadableSource(t *testing.T) {
	s := Compute(Inputs{SourceUnreadable: true})
	assert.Equal(t, StatusUnhealthy, s.Status)
}

func TestComputeHealthyOnEmptyDirectory(t *testing.T) {
	s := Compute(Inputs{InitialScanDone: true})
	assert.Equal(t, StatusHealthy, s.Status)
}

func TestComputeSameInputsSameStatus(t *testing.T) {
	in := Inputs{InitialScanDone: true, TotalFiles: 5, Succeeded: 4, Failed: 1}
	assert.Equal(t, Compute(in), Compute(in))
}

func TestComputePendingDoesNotDegrade(t *testing.T) {
	s := Compute(Inputs{InitialScanDone: true, TotalFiles: 6, Succeeded: 4, Pending: 2})
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Equal(t, 2, s.Pending)
}
