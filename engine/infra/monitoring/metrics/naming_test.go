package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricName(t *testing.T) {
	t.Run("Should namespace bare names once", func(t *testing.T) {
		assert.Equal(t, "modelstore_build_info", MetricName("build_info"))
		assert.Equal(t, "modelstore_build_info", MetricName(MetricName("build_info")))
	})
}

func TestMetricNameWithSubsystem(t *testing.T) {
	t.Run("Should build pool metric names under the postgres subsystem", func(t *testing.T) {
		assert.Equal(t,
			"modelstore_postgres_lease_wait_duration_seconds",
			MetricNameWithSubsystem("postgres", "lease_wait_duration_seconds"),
		)
		assert.Equal(t, "modelstore_postgres_leases_in_use", MetricNameWithSubsystem("_postgres_", "leases_in_use"))
	})

	t.Run("Should degrade to the plain name when a part is missing", func(t *testing.T) {
		assert.Equal(t, "modelstore_uptime_seconds", MetricNameWithSubsystem("", "uptime_seconds"))
		assert.Equal(t, "modelstore_postgres", MetricNameWithSubsystem("postgres", ""))
	})
}

func TestLeaseWaitBuckets(t *testing.T) {
	t.Run("Should be strictly increasing", func(t *testing.T) {
		for i := 1; i < len(LeaseWaitBuckets); i++ {
			assert.Greater(t, LeaseWaitBuckets[i], LeaseWaitBuckets[i-1])
		}
	})
}
