// Package web binds the resolution engine to HTTP: the /graphql
// endpoint, principal extraction, request logging, and the server
// lifecycle.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// maxRequestSize bounds the operation document body.
const maxRequestSize = 1 << 20 // 1MB

// GraphQLHandler serves the single query endpoint. All operations,
// reads and writes alike, arrive as POSTed GraphQL documents.
type GraphQLHandler struct {
	schema graphql.Schema
	logger *zap.Logger
}

// NewGraphQLHandler creates the endpoint handler over an executable
// schema.
func NewGraphQLHandler(schema graphql.Schema, logger *zap.Logger) *GraphQLHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphQLHandler{schema: schema, logger: logger}
}

type graphqlRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName,omitempty"`
}

type errorResponse struct {
	Errors []errorDetail `json:"errors"`
}

type errorDetail struct {
	Message string `json:"message"`
}

// ServeHTTP implements http.Handler
func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "request body is empty")
		} else {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		}
		return
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	if result.HasErrors() {
		h.logger.Debug("operation resolved with errors",
			zap.Int("errors", len(result.Errors)))
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *GraphQLHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Errors: []errorDetail{{Message: message}},
	})
}
