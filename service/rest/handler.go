package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao"
)

var errBadRequest = errors.New("bad request")

// StartRequest carries the business data of a new instance
type StartRequest struct {
	BusinessData map[string]interface{} `json:"businessData"`
}

// ResolveRequest carries per-row results keyed by context id
type ResolveRequest struct {
	Results map[string]flow.Values `json:"results"`
}

// FailRequest carries the failure reason
type FailRequest struct {
	Reason string `json:"reason"`
}

// HandleDeploy compiles and publishes a JSON or YAML graph document
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	document, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	def, err := s.runtime.Deploy(r.Context(), document)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, def)
}

// HandleListDefinitions lists definitions filtered by query parameters
func (s *Server) HandleListDefinitions(w http.ResponseWriter, r *http.Request) {
	definitions, err := s.runtime.Definitions(r.Context(), parameters(r)...)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, definitions)
}

// HandleGetDefinition returns a published definition
func (s *Server) HandleGetDefinition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	def, err := s.runtime.Definition(r.Context(), vars["metaId"], vars["version"])
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

// HandleLookupTypes returns the type path of a definition type
func (s *Server) HandleLookupTypes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	types, err := s.runtime.LookupTypes(r.Context(), vars["metaId"], vars["version"], vars["type"])
	if err != nil {
		respondWithError(w, err)
		return
	}
	if types == nil {
		types = []*definition.TypeNode{}
	}
	respondWithJSON(w, http.StatusOK, types)
}

// HandleStart starts an instance
func (s *Server) HandleStart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var request StartRequest
	if !decode(w, r, &request) {
		return
	}
	row, err := s.runtime.StartProcess(r.Context(), definition.StreamID(vars["metaId"], vars["version"]), request.BusinessData)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, row)
}

// HandleGetTrace returns the rows and counters of an instance
func (s *Server) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := s.runtime.Trace(r.Context(), mux.Vars(r)["traceId"])
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, trace)
}

// HandleTerminate terminates an instance
func (s *Server) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	count, err := s.runtime.Terminate(r.Context(), mux.Vars(r)["traceId"])
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"terminated": count})
}

// HandleListTasks lists pending tasks filtered by query parameters
func (s *Server) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.runtime.Tasks().ListPending(r.Context(), parameters(r)...)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tasks)
}

// HandleGetTask returns a task
func (s *Server) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.runtime.Tasks().Get(r.Context(), mux.Vars(r)["taskId"])
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

// HandleResolveTask resolves a pending task
func (s *Server) HandleResolveTask(w http.ResponseWriter, r *http.Request) {
	var request ResolveRequest
	if !decode(w, r, &request) {
		return
	}
	t, err := s.runtime.Tasks().Resolve(r.Context(), mux.Vars(r)["taskId"], request.Results)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

// HandleFailTask fails a pending task
func (s *Server) HandleFailTask(w http.ResponseWriter, r *http.Request) {
	var request FailRequest
	if !decode(w, r, &request) {
		return
	}
	t, err := s.runtime.Tasks().Fail(r.Context(), mux.Vars(r)["taskId"], request.Reason)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

// HandleStats returns event pool and progress counters
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"pools":    s.runtime.Stats(),
		"progress": s.runtime.Progress(),
	})
}

func decode(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func parameters(r *http.Request) []*dao.Parameter {
	var ret []*dao.Parameter
	for name, values := range r.URL.Query() {
		ret = append(ret, dao.NewParameter(name, values...))
	}
	return ret
}
