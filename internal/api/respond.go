package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"galaxo-monitor/internal/models"
)

// ProblemDetail representa uma resposta de erro no formato RFC7807
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{Title: title, Status: status, Detail: detail})
}

// respondError converte os erros de domínio em respostas RFC7807
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, models.ErrDuplicate):
		problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, models.ErrInvalidArgument):
		problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		problem(w, http.StatusBadGateway, "Upstream Error", err.Error())
	}
}
