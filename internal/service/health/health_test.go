package health

import (
	"context"
	"testing"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatus(t *testing.T) {
	tests := []struct {
		name       string
		probes     map[string]Probe
		status     string
		errmsg     string
		components map[string]string
	}{
		{
			name:       "no probes",
			probes:     nil,
			status:     "ok",
			components: map[string]string{},
		},
		{
			name: "all healthy",
			probes: map[string]Probe{
				"oracle": func(context.Context) error { return nil },
				"stork":  func(context.Context) error { return nil },
			},
			status:     "ok",
			components: map[string]string{"oracle": "ok", "stork": "ok"},
		},
		{
			name: "first failure by name is reported",
			probes: map[string]Probe{
				"stork":  func(context.Context) error { return errors.New("disconnected") },
				"oracle": func(context.Context) error { return errors.New("stale answer") },
				"api":    func(context.Context) error { return nil },
			},
			status:     "error",
			errmsg:     "oracle: stale answer",
			components: map[string]string{"api": "ok", "oracle": "error", "stork": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHealthService(log.WithField("svc", "health"), metrics.Tags{"svc": "health"}, tt.probes)

			res, err := svc.GetStatus(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.S)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.components, res.Data.Components)

			if tt.errmsg == "" {
				assert.Nil(t, res.Errmsg)
			} else {
				require.NotNil(t, res.Errmsg)
				assert.Equal(t, tt.errmsg, *res.Errmsg)
			}
		})
	}
}

func TestGetStatusProbeDeadline(t *testing.T) {
	svc := NewHealthService(log.WithField("svc", "health"), nil, map[string]Probe{
		"oracle": func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("probe has no deadline")
			}
			return nil
		},
	})

	res, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.S)
}
