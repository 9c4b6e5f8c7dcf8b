package obs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthCheckerAggregatesUnhealthy(t *testing.T) {
	hc := NewHealthChecker("streamgate", "test")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddCheck("bad", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })

	report := hc.Report()
	require.Equal(t, StatusUnhealthy, report.Status)
}

func TestHealthCheckerAggregatesDegraded(t *testing.T) {
	hc := NewHealthChecker("streamgate", "test")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddCheck("degraded", func() CheckResult { return CheckResult{Status: StatusDegraded} })

	report := hc.Report()
	require.Equal(t, StatusDegraded, report.Status)
}

func TestHealthCheckerHealthyWithNoChecks(t *testing.T) {
	hc := NewHealthChecker("streamgate", "test")
	report := hc.Report()
	require.Equal(t, StatusHealthy, report.Status)
}

func TestConfigurationCheckFlagsMissingValues(t *testing.T) {
	check := ConfigurationCheck(map[string]string{"A": "", "B": "present"})
	result := check()
	require.Equal(t, StatusUnhealthy, result.Status)
}

func TestStorageCheckDegradesOnMissingDir(t *testing.T) {
	check := StorageCheck("/nonexistent/path", func(string) error { return os.ErrNotExist })
	result := check()
	require.Equal(t, StatusDegraded, result.Status)
}
