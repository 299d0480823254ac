package staff

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/apperr"
)

func newTestServer(t *testing.T) (*fixture, *echo.Echo) {
	t.Helper()
	f := newFixture(t)
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1")
	api.Use(auth.Authenticate(auth.AuthenticatorConfig{
		Tokens:      f.tokens,
		Identities:  f.svc,
		Revocations: f.revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      zerolog.Nop(),
	}))
	NewHandler(f.svc).RegisterRoutes(api)
	return f, e
}

func doJSON(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_LoginMeLogout(t *testing.T) {
	f, e := newTestServer(t)
	f.createUser(t, "nurse1", f.staff)

	rec := doJSON(e, http.MethodPost, "/api/v1/auth/login", `{"username":"nurse1","password":"secret123"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatal("password hash leaked in login response")
	}
	var sess struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/auth/me", "", sess.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/auth/logout", "", sess.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/auth/me", "", sess.Token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestHandler_Login_BadCredentials(t *testing.T) {
	f, e := newTestServer(t)
	f.createUser(t, "nurse1", f.staff)

	rec := doJSON(e, http.MethodPost, "/api/v1/auth/login", `{"username":"nurse1","password":"nope"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "Invalid credentials" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestHandler_Users_AdminGate(t *testing.T) {
	f, e := newTestServer(t)
	f.createUser(t, "nurse1", f.staff)
	f.createUser(t, "boss", f.admin)

	login := func(username string) string {
		rec := doJSON(e, http.MethodPost, "/api/v1/auth/login", `{"username":"`+username+`","password":"secret123"}`, "")
		var sess struct {
			Token string `json:"token"`
		}
		json.Unmarshal(rec.Body.Bytes(), &sess)
		return sess.Token
	}

	// user:read on the staff role satisfies the broad admin gate
	rec := doJSON(e, http.MethodGet, "/api/v1/users", "", login("nurse1"))
	if rec.Code != http.StatusOK {
		t.Errorf("staff: expected 200, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/users", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", rec.Code)
	}

	body := `{"username":"nurse9","password":"secret123","role":"` + f.staff.ID.String() + `"}`
	rec = doJSON(e, http.MethodPost, "/api/v1/users", body, login("boss"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/users", body, login("boss"))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Username already exists") {
		t.Errorf("duplicate: expected 400 Username already exists, got %d %s", rec.Code, rec.Body.String())
	}
}
