package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(provisioningRequests.WithLabelValues("boot", OutcomeOK))
	ProvisioningRequest("boot", OutcomeOK)
	assert.Equal(t, before+1, testutil.ToFloat64(provisioningRequests.WithLabelValues("boot", OutcomeOK)))

	v := testutil.ToFloat64(versionsCreated)
	VersionCreated()
	assert.Equal(t, v+1, testutil.ToFloat64(versionsCreated))

	ObserveRender(time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(renderDuration))
}
