package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	apierrors "github.com/zhichaoleo/roboptim-core/internal/errors"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jobParams selects a job in solve.status and solve.cancel.
type jobParams struct {
	ID    string `json:"id"`
	Since *int   `json:"since,omitempty"`
}

// invalidParams marks a decoding failure of the method params.
type invalidParams struct{ err error }

func (e invalidParams) Error() string { return e.err.Error() }

// decodeParams accepts either a params object or a one-element array
// holding it.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return invalidParams{fmt.Errorf("missing required parameters")}
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return invalidParams{err}
		}
		if len(list) != 1 {
			return invalidParams{fmt.Errorf("expected one parameter object, got %d", len(list))}
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams{fmt.Errorf("invalid parameter format, expected object: %w", err)}
	}
	return nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil, nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "solve.start":
		result, err = s.rpcSolveStart(request.Params)
	case "solve.status":
		result, err = s.rpcSolveStatus(request.Params)
	case "solve.cancel":
		result, err = s.rpcSolveCancel(request.Params)
	case "backends.list":
		result = solver.Backends()
	case "problems.list":
		result = catalog.Names()
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		var bad invalidParams
		if apierrors.As(err, &bad) {
			s.respondWithError(w, rpcInvalidParams, "Invalid params", request.ID, err.Error())
			return
		}
		resp := apierrors.NewResponse(err)
		s.respondWithError(w, rpcServerError, "Server error", request.ID, resp)
		return
	}

	// Send successful response
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// rpcSolveStart handles the solve.start method.
// Expected parameters: {"problem": "rosenbrock", "backend": "gonum-bfgs"}
// Returns: {"id": "...", "status": "pending"}
func (s *Server) rpcSolveStart(raw json.RawMessage) (interface{}, error) {
	var req SolveRequest
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	if req.Problem == "" {
		return nil, invalidParams{fmt.Errorf("problem is required")}
	}
	job, err := s.jobs.Start(req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":      job.ID,
		"backend": job.Backend,
		"status":  job.Status(),
	}, nil
}

// rpcSolveStatus handles the solve.status method.
// Expected parameters: {"id": "...", "since": 10}
func (s *Server) rpcSolveStatus(raw json.RawMessage) (interface{}, error) {
	var params jobParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	job, err := s.jobs.Get(params.ID)
	if err != nil {
		return nil, err
	}
	since := 0
	if params.Since != nil {
		since = *params.Since
	}
	return job.Snapshot(since), nil
}

// rpcSolveCancel handles the solve.cancel method.
// Expected parameters: {"id": "..."}
func (s *Server) rpcSolveCancel(raw json.RawMessage) (interface{}, error) {
	var params jobParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	job, err := s.jobs.Get(params.ID)
	if err != nil {
		return nil, err
	}
	if err := job.Cancel(); err != nil {
		return nil, err
	}
	return map[string]string{"id": job.ID, "status": "cancelling"}, nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data interface{}) {
	s.logger.Warn("rpc request failed", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		errObj["data"] = data
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   errObj,
		"id":      id,
	})
}
