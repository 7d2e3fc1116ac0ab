package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/InjectiveLabs/suplog"
	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	uuid "github.com/satori/go.uuid"
	goahttp "goa.design/goa/v3/http"
	goaMiddleware "goa.design/goa/v3/middleware"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/health"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle"
)

const (
	apiBasePath    = "/api/price-oracle/v1"
	healthBasePath = "/api/health/v1"

	apiKeyHeader    = "X-Api-Key"
	requestIDHeader = "X-Request-Id"

	// GRPCServiceName is reported by the gRPC health service.
	GRPCServiceName = "lending_price_oracle"
)

type Server struct {
	httpSrv    *http.Server
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server

	logger log.Logger
}

// New builds the HTTP server: JSON API, health status and the gRPC health
// service served as grpc-web, all on one listener.
func New(listenAddr string, requestTimeout time.Duration, apiSvc oracle.APIService, healthSvc *health.Service) *Server {
	logger := log.WithField("svc", "server")

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(TimeoutInterceptor(requestTimeout)))
	grpcHealth := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, grpcHealth)
	grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpcHealth.SetServingStatus(GRPCServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	mux := goahttp.NewMuxer()
	mountAPI(mux, apiSvc, newErrorHandler(logger))
	mountHealth(mux, healthSvc, newErrorHandler(logger))

	grpcWeb := grpcweb.WrapServer(grpcServer)
	mountGRPCWebServices(mux, grpcWeb, grpcweb.ListGRPCResources(grpcServer), requestTimeout)

	handlerWithCors := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders:     []string{"*"},
		AllowCredentials:   false,
		OptionsPassthrough: false,
	})

	return &Server{
		httpSrv: &http.Server{
			Addr:              listenAddr,
			Handler:           withRequestID(handlerWithCors.Handler(mux)),
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpcServer: grpcServer,
		grpcHealth: grpcHealth,
		logger:     logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errC := make(chan error, 1)
	go func() {
		s.logger.Infof("lending price oracle api starts listening on %s", s.httpSrv.Addr)
		errC <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "failed to start HTTP server")
		}

		return nil
	case <-ctx.Done():
	}

	s.grpcHealth.Shutdown()

	shutdownCtx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown HTTP server")
	}

	s.grpcServer.Stop()
	return nil
}

func withRequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewV4().String()
		}

		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), goaMiddleware.RequestIDKey, id)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func mountGRPCWebServices(
	mux goahttp.Muxer,
	grpcWeb *grpcweb.WrappedGrpcServer,
	grpcResources []string,
	requestTimeout time.Duration,
) {
	for _, res := range grpcResources {
		currentResource := res

		log.Infof("[GRPC Web] HTTP POST mounted on %s", currentResource)

		mux.Handle("POST", currentResource, func(resp http.ResponseWriter, req *http.Request) {
			if !grpcWeb.IsGrpcWebRequest(req) {
				resp.WriteHeader(http.StatusBadRequest)
				_, _ = resp.Write([]byte(fmt.Sprintf("not a GRPC web request on %s", currentResource)))
				return
			}

			ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
			defer cancel()

			grpcWeb.HandleGrpcWebRequest(resp, req.WithContext(ctx))
		})
	}
}

func TimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// parseLimit reads a positive integer query parameter, def when absent.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.Wrapf(oracle.ErrInvalidInput, "limit %q", raw)
	}

	return limit, nil
}
