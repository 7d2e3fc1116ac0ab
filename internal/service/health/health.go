package health

import (
	"context"
	"sort"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
)

const probeTimeout = 5 * time.Second

// Probe reports whether a component is able to serve.
type Probe func(ctx context.Context) error

type HealthStatusResponse struct {
	// S is the status of the response: ok or error.
	S      string        `json:"s"`
	Errmsg *string       `json:"errmsg,omitempty"`
	Data   *HealthStatus `json:"data,omitempty"`
	Status string        `json:"status"`
}

type HealthStatus struct {
	Components map[string]string `json:"components"`
}

type Service struct {
	probes map[string]Probe

	logger  log.Logger
	svcTags metrics.Tags
}

func NewHealthService(logger log.Logger, svcTags metrics.Tags, probes map[string]Probe) *Service {
	return &Service{
		probes:  probes,
		logger:  logger,
		svcTags: svcTags,
	}
}

// GetStatus runs every probe and reports the first failure, by name order.
func (s *Service) GetStatus(ctx context.Context) (res *HealthStatusResponse, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	res = &HealthStatusResponse{
		S:      "ok",
		Status: "ok",
		Data: &HealthStatus{
			Components: make(map[string]string, len(names)),
		},
	}

	for _, name := range names {
		probeCtx, cancelFn := context.WithTimeout(ctx, probeTimeout)
		probeErr := s.probes[name](probeCtx)
		cancelFn()

		if probeErr == nil {
			res.Data.Components[name] = "ok"
			continue
		}

		s.logger.WithField("component", name).WithError(probeErr).Warningln("health probe failed")
		res.Data.Components[name] = "error"

		if res.Errmsg == nil {
			msg := name + ": " + probeErr.Error()
			res.Errmsg = &msg
			res.S = "error"
			res.Status = "error"
		}
	}

	return res, nil
}
