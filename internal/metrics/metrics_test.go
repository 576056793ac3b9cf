package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetState(t *testing.T) {
	SetState("RECORDING")
	for _, s := range States {
		want := 0.0
		if s == "RECORDING" {
			want = 1
		}
		assert.Equal(t, want, testutil.ToFloat64(SessionState.WithLabelValues(s)), "state %s", s)
	}

	SetState("STOPPED")
	assert.Equal(t, 0.0, testutil.ToFloat64(SessionState.WithLabelValues("RECORDING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(SessionState.WithLabelValues("STOPPED")))
}
