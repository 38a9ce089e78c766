package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/memora/internal/engine"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: query is required", engine.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("%w: agent \"x\"", engine.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("%w: %w", engine.ErrStrategyUnavailable, errors.New("all down")), http.StatusServiceUnavailable, "STRATEGY_UNAVAILABLE"},
		{engine.ErrNotStarted, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{fmt.Errorf("embed: %w", engine.ErrDependencyTimeout), http.StatusGatewayTimeout, "TIMEOUT"},
		{fmt.Errorf("wait: %w", engine.ErrTimeout), http.StatusGatewayTimeout, "TIMEOUT"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			status, code := statusForError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
