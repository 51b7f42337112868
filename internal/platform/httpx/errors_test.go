package httpx

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: challan", ErrNotFound), http.StatusNotFound},
		{"validation", fmt.Errorf("%w: quantity", ErrValidation), http.StatusBadRequest},
		{"invalid state", fmt.Errorf("%w: delivered", ErrInvalidState), http.StatusBadRequest},
		{"insufficient stock", ErrInsufficientStock, http.StatusBadRequest},
		{"conflict", fmt.Errorf("%w: idempotent request already processed", ErrConflict), http.StatusConflict},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}
