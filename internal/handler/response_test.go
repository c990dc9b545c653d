package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/movemonth/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	challenge := &model.Challenge{Title: "June"}
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewInvalidInputError("bad"), http.StatusBadRequest},
		{model.NewUnauthenticatedError(), http.StatusUnauthorized},
		{model.NewForbiddenError("create_challenge"), http.StatusForbidden},
		{model.NewChallengeNotFoundError("x"), http.StatusNotFound},
		{model.NewProfileNotFoundError(), http.StatusNotFound},
		{model.NewNoCurrentChallengeError(), http.StatusNotFound},
		{model.NewStravaNotConnectedError(), http.StatusNotFound},
		{model.NewOutOfWindowError(challenge), http.StatusUnprocessableEntity},
		{model.NewChallengeOverlapError(challenge), http.StatusConflict},
		{model.NewUpstreamUnavailableError(nil), http.StatusBadGateway},
		{model.NewUpstreamAuthFailureError(nil), http.StatusBadGateway},
		{model.NewStoreUnavailableError(nil), http.StatusServiceUnavailable},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, model.NewStoreUnavailableError(errors.New("pq: password authentication failed")))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != model.ErrCodeStoreUnavailable {
		t.Errorf("code = %q", body["code"])
	}
	for _, v := range body {
		if v == "pq: password authentication failed" {
			t.Error("cause must not be exposed in the response")
		}
	}
}

func TestHandleServiceError_PlainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %q", body["code"])
	}
}
