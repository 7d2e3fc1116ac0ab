package server

import (
	"context"
	"io"
	"net/http"

	log "github.com/InjectiveLabs/suplog"
	"github.com/pkg/errors"
	goahttp "goa.design/goa/v3/http"
	goaMiddleware "goa.design/goa/v3/middleware"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/health"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/manual"
)

const defaultEventsLimit = 100

type errorHandler func(context.Context, http.ResponseWriter, error)

type pricesRequest struct {
	Assets []string `json:"assets"`
}

type okResponse struct {
	S string `json:"s"`
}

func mountAPI(mux goahttp.Muxer, svc oracle.APIService, onError errorHandler) {
	mux.Handle("GET", apiBasePath+"/prices/{asset}", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetPrice(r.Context(), mux.Vars(r)["asset"])
		respond(w, r, res, err, onError)
	})

	mux.Handle("POST", apiBasePath+"/prices", func(w http.ResponseWriter, r *http.Request) {
		var body pricesRequest
		if err := decode(r, &body); err != nil {
			onError(r.Context(), w, err)
			return
		}

		res, err := svc.GetPrices(r.Context(), body.Assets)
		respond(w, r, res, err, onError)
	})

	mux.Handle("GET", apiBasePath+"/assets/{asset}", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetAsset(r.Context(), mux.Vars(r)["asset"])
		respond(w, r, res, err, onError)
	})

	mux.Handle("GET", apiBasePath+"/config", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetConfig(r.Context())
		respond(w, r, res, err, onError)
	})

	mux.Handle("GET", apiBasePath+"/events", func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, defaultEventsLimit)
		if err != nil {
			onError(r.Context(), w, err)
			return
		}

		res, err := svc.GetEvents(r.Context(), limit)
		respond(w, r, res, err, onError)
	})

	mux.Handle("POST", apiBasePath+"/admin/feed-ids", func(w http.ResponseWriter, r *http.Request) {
		var body oracle.FeedIDsRequest
		if err := decode(r, &body); err != nil {
			onError(r.Context(), w, err)
			return
		}

		err := svc.SetFeedIDs(r.Context(), r.Header.Get(apiKeyHeader), &body)
		respond(w, r, &okResponse{S: "ok"}, err, onError)
	})

	mux.Handle("POST", apiBasePath+"/admin/pair-indexes", func(w http.ResponseWriter, r *http.Request) {
		var body oracle.PairIndexesRequest
		if err := decode(r, &body); err != nil {
			onError(r.Context(), w, err)
			return
		}

		err := svc.SetPairIndexes(r.Context(), r.Header.Get(apiKeyHeader), &body)
		respond(w, r, &okResponse{S: "ok"}, err, onError)
	})

	mux.Handle("POST", apiBasePath+"/admin/staleness-threshold", func(w http.ResponseWriter, r *http.Request) {
		var body oracle.StalenessThresholdRequest
		if err := decode(r, &body); err != nil {
			onError(r.Context(), w, err)
			return
		}

		err := svc.SetStalenessThreshold(r.Context(), r.Header.Get(apiKeyHeader), &body)
		respond(w, r, &okResponse{S: "ok"}, err, onError)
	})

	mux.Handle("POST", apiBasePath+"/admin/manual-prices", func(w http.ResponseWriter, r *http.Request) {
		var body oracle.ManualPricesRequest
		if err := decode(r, &body); err != nil {
			onError(r.Context(), w, err)
			return
		}

		err := svc.SetManualPrices(r.Context(), r.Header.Get(apiKeyHeader), &body)
		respond(w, r, &okResponse{S: "ok"}, err, onError)
	})
}

func mountHealth(mux goahttp.Muxer, svc *health.Service, onError errorHandler) {
	mux.Handle("GET", healthBasePath+"/status", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetStatus(r.Context())
		respond(w, r, res, err, onError)
	})
}

func decode(r *http.Request, v interface{}) error {
	if err := goahttp.RequestDecoder(r).Decode(v); err != nil {
		if err == io.EOF {
			return errors.Wrap(oracle.ErrInvalidInput, "empty body")
		}

		return errors.Wrapf(oracle.ErrInvalidInput, "malformed body: %v", err)
	}

	return nil
}

func respond(w http.ResponseWriter, r *http.Request, res interface{}, err error, onError errorHandler) {
	if err != nil {
		onError(r.Context(), w, err)
		return
	}

	enc := goahttp.ResponseEncoder(r.Context(), w)
	w.WriteHeader(http.StatusOK)
	if err := enc.Encode(res); err != nil {
		log.WithError(err).Warningln("failed to encode response")
	}
}

type errorResponse struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// statusOf maps resolution and admin errors to HTTP statuses.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, oracle.ErrInvalidAPIKey):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, oracle.ErrNotAuthorized), errors.Is(err, manual.ErrNotAuthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, oracle.ErrInvalidInput),
		errors.Is(err, oracle.ErrInconsistentParams),
		errors.Is(err, oracle.ErrZeroThresholdNotAllowed):
		return http.StatusBadRequest, "invalid_arg"
	case errors.Is(err, oracle.ErrStaleAnswer):
		return http.StatusServiceUnavailable, "stale_answer"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func newErrorHandler(logger log.Logger) errorHandler {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	return func(ctx context.Context, w http.ResponseWriter, err error) {
		id, _ := ctx.Value(goaMiddleware.RequestIDKey).(string)
		status, name := statusOf(err)

		logFields := log.Fields{
			"request_id": id,
			"status":     status,
		}
		if errWithStack, ok := err.(stackTracer); ok {
			logFields["stack_frames"] = len(errWithStack.StackTrace())
		}

		msg := err.Error()
		if status == http.StatusInternalServerError {
			logger.WithFields(logFields).Warningln(err)
			msg = "request processing internal error"
		} else {
			logger.WithFields(logFields).Debugln(err)
		}

		enc := goahttp.ResponseEncoder(ctx, w)
		w.WriteHeader(status)
		_ = enc.Encode(&errorResponse{
			Name:      name,
			Message:   msg,
			RequestID: id,
		})
	}
}
