package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	svc, _ := newTestService(testConfig())
	return NewHandlers(svc, nil)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
	}{
		{
			name:       "valid request",
			body:       map[string]string{"username": "alice", "email": "a@x.com", "password": "pw123"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing username",
			body:       map[string]string{"email": "a@x.com", "password": "pw123"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing email",
			body:       map[string]string{"username": "alice", "password": "pw123"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing password",
			body:       map[string]string{"username": "alice", "email": "a@x.com"},
			wantStatus: http.StatusBadRequest,
		},
		{
			// Emails are checked for presence only, not shape.
			name:       "unorthodox email accepted",
			body:       map[string]string{"username": "alice", "email": "a@x", "password": "pw123"},
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandlers(t)
			w := postJSON(t, h.Register, "/api/users/register", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRegisterHandlerResponseShape(t *testing.T) {
	h := newTestHandlers(t)

	w := postJSON(t, h.Register, "/api/users/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp["id"] != float64(1) || resp["email"] != "a@x.com" {
		t.Errorf("unexpected response: %v", resp)
	}
	if _, ok := resp["password"]; ok {
		t.Error("response must not echo the password")
	}
	if strings.Contains(w.Body.String(), "$2a$") {
		t.Error("response must not contain a password hash")
	}
}

func TestRegisterHandlerDuplicate(t *testing.T) {
	h := newTestHandlers(t)
	body := map[string]string{"username": "alice", "email": "a@x.com", "password": "pw123"}

	if w := postJSON(t, h.Register, "/api/users/register", body); w.Code != http.StatusCreated {
		t.Fatalf("first register: status = %d", w.Code)
	}

	w := postJSON(t, h.Register, "/api/users/register", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate register: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "USER_EXISTS") {
		t.Errorf("expected USER_EXISTS code, body %s", w.Body.String())
	}
}

func TestLoginHandler(t *testing.T) {
	h := newTestHandlers(t)

	if w := postJSON(t, h.Register, "/api/users/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw123",
	}); w.Code != http.StatusCreated {
		t.Fatalf("register: status = %d", w.Code)
	}

	w := postJSON(t, h.Login, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "pw123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body %s", w.Code, w.Body.String())
	}

	var tokens TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Error("login response should carry both tokens")
	}

	if w := postJSON(t, h.Login, "/api/users/login", map[string]string{
		"email": "a@x.com",
	}); w.Code != http.StatusBadRequest {
		t.Errorf("missing password: status = %d, want 400", w.Code)
	}
}

func TestLoginHandlerNoExistenceLeak(t *testing.T) {
	h := newTestHandlers(t)

	if w := postJSON(t, h.Register, "/api/users/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw123",
	}); w.Code != http.StatusCreated {
		t.Fatalf("register: status = %d", w.Code)
	}

	wrongPass := postJSON(t, h.Login, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	unknownUser := postJSON(t, h.Login, "/api/users/login", map[string]string{
		"email": "nobody@x.com", "password": "pw123",
	})

	if wrongPass.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want both 401", wrongPass.Code, unknownUser.Code)
	}
	if wrongPass.Body.String() != unknownUser.Body.String() {
		t.Errorf("responses differ, leaking user existence:\n%s\n%s",
			wrongPass.Body.String(), unknownUser.Body.String())
	}
}

func TestRefreshHandler(t *testing.T) {
	h := newTestHandlers(t)

	if w := postJSON(t, h.Register, "/api/users/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw123",
	}); w.Code != http.StatusCreated {
		t.Fatalf("register: status = %d", w.Code)
	}

	w := postJSON(t, h.Login, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "pw123",
	})
	var tokens TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("invalid login response: %v", err)
	}

	w = postJSON(t, h.Refresh, "/api/users/refresh-token", map[string]string{
		"refreshToken": tokens.RefreshToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d, body %s", w.Code, w.Body.String())
	}
	var resp RefreshResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid refresh response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("refresh response should carry a new access token")
	}

	// Missing token
	if w := postJSON(t, h.Refresh, "/api/users/refresh-token", map[string]string{}); w.Code != http.StatusUnauthorized {
		t.Errorf("missing refresh token: status = %d, want 401", w.Code)
	}

	// Unknown token
	w = postJSON(t, h.Refresh, "/api/users/refresh-token", map[string]string{
		"refreshToken": "never-issued",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("invalid refresh token: status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INVALID_TOKEN") {
		t.Errorf("expected INVALID_TOKEN code, body %s", w.Body.String())
	}
}

// TestAuthScenario walks the full register/login/refresh sequence.
func TestAuthScenario(t *testing.T) {
	h := newTestHandlers(t)

	w := postJSON(t, h.Register, "/api/users/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "pw123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status = %d", w.Code)
	}
	var registered RegisteredUser
	if err := json.Unmarshal(w.Body.Bytes(), &registered); err != nil {
		t.Fatalf("invalid register response: %v", err)
	}
	if registered.ID != 1 || registered.Email != "a@x.com" {
		t.Errorf("unexpected register response: %+v", registered)
	}

	w = postJSON(t, h.Login, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "pw123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status = %d", w.Code)
	}
	var tokens TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("invalid login response: %v", err)
	}

	w = postJSON(t, h.Refresh, "/api/users/refresh-token", map[string]string{
		"refreshToken": tokens.RefreshToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d", w.Code)
	}

	w = postJSON(t, h.Login, "/api/users/login", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password login: status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INVALID_CREDENTIALS") {
		t.Errorf("expected INVALID_CREDENTIALS code, body %s", w.Body.String())
	}
}

func TestValidateRegisterRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *RegisterRequest
		wantErr bool
	}{
		{
			name:    "valid request",
			req:     &RegisterRequest{Username: "alice", Email: "a@x.com", Password: "pw123"},
			wantErr: false,
		},
		{
			name:    "empty username",
			req:     &RegisterRequest{Email: "a@x.com", Password: "pw123"},
			wantErr: true,
		},
		{
			name:    "empty email",
			req:     &RegisterRequest{Username: "alice", Password: "pw123"},
			wantErr: true,
		},
		{
			name:    "unorthodox email accepted",
			req:     &RegisterRequest{Username: "alice", Email: "a@x", Password: "pw123"},
			wantErr: false,
		},
		{
			name:    "empty password",
			req:     &RegisterRequest{Username: "alice", Email: "a@x.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRegisterRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRegisterRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
