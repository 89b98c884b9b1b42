package errors

import (
	"encoding/json"
	"net/http"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/problem"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// statuses maps framework sentinels to HTTP statuses, first match wins.
var statuses = []struct {
	err    error
	status int
}{
	{catalog.ErrUnknownProblem, http.StatusNotFound},
	{optimization.ErrUnknownBackend, http.StatusNotFound},
	{optimization.ErrInvalidProblem, http.StatusUnprocessableEntity},
	{optimization.ErrDimensionMismatch, http.StatusBadRequest},
	{optimization.ErrUnsupportedOperation, http.StatusUnprocessableEntity},
	{solver.ErrInvalidParameter, http.StatusBadRequest},
	{optimization.ErrSolveStarted, http.StatusConflict},
	{optimization.ErrProblemFrozen, http.StatusConflict},
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	var e *Error
	if As(err, &e) && e.Status != 0 {
		return e.Status
	}
	for _, s := range statuses {
		if Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Response is the JSON body of an error response.
type Response struct {
	Error   string   `json:"error"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
}

// NewResponse builds the response body for err. Aggregated problem
// validation errors are listed one per detail.
func NewResponse(err error) Response {
	status := StatusOf(err)
	resp := Response{Error: err.Error(), Status: status}
	if status == http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
	}
	if Is(err, optimization.ErrInvalidProblem) {
		for _, v := range problem.Violations(err) {
			resp.Details = append(resp.Details, v.Error())
		}
	}
	return resp
}

// Write writes err as a JSON error response.
func Write(w http.ResponseWriter, err error) {
	resp := NewResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}
