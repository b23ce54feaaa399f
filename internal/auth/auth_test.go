package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testSecret = "test-api-secret"

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewService(testSecret)

	resp, err := svc.IssueToken(testSecret)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected non-empty access token")
	}
	if resp.ExpiresIn != int(TokenExpiry.Seconds()) {
		t.Errorf("ExpiresIn = %d, want %d", resp.ExpiresIn, int(TokenExpiry.Seconds()))
	}

	if _, err := svc.ValidateToken(resp.AccessToken); err != nil {
		t.Errorf("ValidateToken: %v", err)
	}
}

func TestIssueToken_WrongSecret(t *testing.T) {
	svc := NewService(testSecret)

	if _, err := svc.IssueToken("wrong-secret"); err != ErrInvalidSecret {
		t.Errorf("error = %v, want ErrInvalidSecret", err)
	}
}

func TestValidateToken_WrongSigningKey(t *testing.T) {
	issuer := NewService(testSecret)
	validator := NewService("different-secret")

	resp, err := issuer.IssueToken(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := validator.ValidateToken(resp.AccessToken); err != ErrInvalidToken {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewService(testSecret)

	if _, err := svc.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenHandler(t *testing.T) {
	handlers := NewHandlers(NewService(testSecret))

	body, _ := json.Marshal(TokenRequest{Secret: testSecret})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handlers.Token(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp TokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken == "" {
		t.Error("expected access token in response")
	}
}

func TestTokenHandler_WrongSecret(t *testing.T) {
	handlers := NewHandlers(NewService(testSecret))

	body, _ := json.Marshal(TokenRequest{Secret: "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handlers.Token(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	svc := NewService(testSecret)
	resp, err := svc.IssueToken(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(svc)(next)

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{
			"bearer header",
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+resp.AccessToken) },
			http.StatusNoContent,
		},
		{
			"token query param",
			func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", resp.AccessToken)
				r.URL.RawQuery = q.Encode()
			},
			http.StatusNoContent,
		},
		{
			"missing token",
			func(r *http.Request) {},
			http.StatusUnauthorized,
		},
		{
			"malformed header",
			func(r *http.Request) { r.Header.Set("Authorization", "Token abc") },
			http.StatusUnauthorized,
		},
		{
			"invalid token",
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") },
			http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
