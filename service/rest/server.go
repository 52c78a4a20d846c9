// Package rest exposes the runtime over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/viant/fluxflow"
	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/runtime/driver"
	"github.com/viant/fluxflow/service/compiler"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/dao/definition"
	"github.com/viant/fluxflow/service/task"
	"go.uber.org/zap"
)

// Server serves definitions, instances and manual tasks
type Server struct {
	http.Server
	runtime *fluxflow.Runtime
}

// NewServer creates a server bound to addr
func NewServer(addr string, runtime *fluxflow.Runtime) *Server {
	s := &Server{
		Server: http.Server{
			Addr:        addr,
			IdleTimeout: 2 * time.Second,
		},
		runtime: runtime,
	}
	s.Handler = s.Router()
	return s
}

// Router returns the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/definitions", s.HandleDeploy).Methods(http.MethodPost)
	v1.HandleFunc("/definitions", s.HandleListDefinitions).Methods(http.MethodGet)
	v1.HandleFunc("/definitions/{metaId}/{version}", s.HandleGetDefinition).Methods(http.MethodGet)
	v1.HandleFunc("/definitions/{metaId}/{version}/instances", s.HandleStart).Methods(http.MethodPost)
	v1.HandleFunc("/definitions/{metaId}/{version}/types/{type}", s.HandleLookupTypes).Methods(http.MethodGet)
	v1.HandleFunc("/traces/{traceId}", s.HandleGetTrace).Methods(http.MethodGet)
	v1.HandleFunc("/traces/{traceId}/terminate", s.HandleTerminate).Methods(http.MethodPost)
	v1.HandleFunc("/tasks", s.HandleListTasks).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{taskId}", s.HandleGetTask).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{taskId}/resolve", s.HandleResolveTask).Methods(http.MethodPost)
	v1.HandleFunc("/tasks/{taskId}/fail", s.HandleFailTask).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.HandleStats).Methods(http.MethodGet)
	router.Use(loggingMiddleware)
	return router
}

// Start listens until the server is shut down
func (s *Server) Start() error {
	logger.Info("starting http server", zap.String("addr", s.Addr))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down
func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("request", zap.String("method", r.Method), zap.String("uri", r.RequestURI))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	respondWithJSON(w, code, map[string]string{"error": err.Error()})
}

func statusCode(err error) int {
	var compileErr *compiler.CompileError
	var unsupported *compiler.UnsupportedTypeError
	switch {
	case errors.Is(err, dao.ErrNotFound), errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, definition.ErrConflict), errors.Is(err, task.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, driver.ErrInactive), driver.IsStateError(err):
		return http.StatusConflict
	case errors.Is(err, task.ErrInvalidResult), errors.As(err, &compileErr), errors.As(err, &unsupported), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
