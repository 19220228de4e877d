package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/service"
)

const msgCompileFault = "An unexpected server error occurred during compilation."

// CompileHandler runs submitted code.
type CompileHandler struct {
	svc    *service.ExecutionService
	logger *slog.Logger
}

// NewCompileHandler creates a new CompileHandler.
func NewCompileHandler(svc *service.ExecutionService, logger *slog.Logger) *CompileHandler {
	return &CompileHandler{svc: svc, logger: logger}
}

// CompileResponse wraps a successful run.
type CompileResponse struct {
	Success bool                      `json:"success"`
	Data    *executor.ExecutionResult `json:"data"`
}

// HandleCompile compiles and runs one program.
//
// HTTP: POST /api/compile (and the legacy POST /compile)
// REQUEST BODY: {"language": "python", "code": "print(input())", "input": "hi"}
//
// A program that fails to compile, crashes or times out is still a 200: the
// request was served and the body says what went wrong. Only a failure of
// the server itself is a 500.
func (h *CompileHandler) HandleCompile(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Compile(r.Context(), req)
	switch {
	case errors.Is(err, apperror.ErrValidation):
		writeError(w, h.logger, err, "")
	case err != nil:
		// Already logged by the service with its language and cause.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msgCompileFault})
	case result.Success:
		writeJSON(w, http.StatusOK, CompileResponse{Success: true, Data: result})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
