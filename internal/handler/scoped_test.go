package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/steamauth/internal/middleware"
	"github.com/hitoshi/steamauth/internal/model"
)

func failing(err error) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		return err
	}
}

func TestScoped_Success_LeavesResponseUntouched(t *testing.T) {
	h := Scoped(RedirectOnError, nil, func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusTeapot)
		return nil
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

func TestScoped_RedirectOnError_UsesResolver(t *testing.T) {
	sess := pendingSteamSession()
	var gotSess *model.Session
	resolver := &mockAuthService{
		failureRedirectFn: func(s *model.Session, err error) (string, bool) {
			gotSess = s
			return "https://app1.example.com/login?code=" + model.CodeOf(err), true
		},
	}
	h := Scoped(RedirectOnError, resolver, failing(model.NewAlreadyLinkedError()))

	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(), sess))
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != "https://app1.example.com/login?code=account_already_linked" {
		t.Errorf("Location = %q", loc)
	}
	if gotSess != sess {
		t.Error("resolver did not receive the request session")
	}
}

func TestScoped_RedirectOnError_NoTarget_Returns500(t *testing.T) {
	resolver := &mockAuthService{
		failureRedirectFn: func(s *model.Session, err error) (string, bool) {
			return "", false
		},
	}
	h := Scoped(RedirectOnError, resolver, failing(errors.New("boom")))

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/auth/steam/callback", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := w.Body.String(); got != "Error logging in\n" {
		t.Errorf("body = %q", got)
	}
}

func TestScoped_JSONOnError_WritesAPIError(t *testing.T) {
	h := Scoped(JSONOnError, nil, failing(model.NewInvalidIDTokenError(errors.New("expired"))))

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/longlived-token", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != model.CodeInvalidIDToken {
		t.Errorf("code = %v, want %q", body["code"], model.CodeInvalidIDToken)
	}
}

func TestScoped_JSONOnError_UnclassifiedError_HidesDetails(t *testing.T) {
	h := Scoped(JSONOnError, nil, failing(errors.New("pq: connection refused")))

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/longlived-token", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v, want INTERNAL_ERROR/system", body)
	}
	if strings.Contains(body.Message, "pq") {
		t.Errorf("message leaks cause: %q", body.Message)
	}
}
