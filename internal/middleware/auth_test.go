package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"dispatch/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(verifier *TokenVerifier) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	authed := r.Group("", Auth(verifier))
	authed.GET("/me", func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role})
	})
	authed.GET("/tech", RequireRoles(domain.RoleTechnician), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestTokenVerifier_RoundTrip(t *testing.T) {
	t.Parallel()
	v := NewTokenVerifier("secret", "accounts")

	token, err := v.Sign(domain.Principal{UserID: "tech-1", Role: domain.RoleTechnician}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.UserID != "tech-1" || p.Role != domain.RoleTechnician {
		t.Errorf("unexpected principal: %+v", p)
	}
}

func TestTokenVerifier_Rejects(t *testing.T) {
	t.Parallel()
	v := NewTokenVerifier("secret", "accounts")
	customer := domain.Principal{UserID: "cust-1", Role: domain.RoleCustomer}

	wrongSecret, _ := NewTokenVerifier("other", "accounts").Sign(customer, time.Hour)
	wrongIssuer, _ := NewTokenVerifier("secret", "elsewhere").Sign(customer, time.Hour)
	expired, _ := v.Sign(customer, -time.Minute)
	unknownRole, _ := v.Sign(domain.Principal{UserID: "x", Role: domain.Role("OPERATOR")}, time.Hour)
	noSubject, _ := v.Sign(domain.Principal{Role: domain.RoleCustomer}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1", Issuer: "accounts"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", wrongSecret},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"unknown role", unknownRole},
		{"no subject", noSubject},
		{"unsigned", none},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	v := NewTokenVerifier("secret", "")
	router := newTestRouter(v)
	tech, _ := v.Sign(domain.Principal{UserID: "tech-1", Role: domain.RoleTechnician}, time.Hour)
	cust, _ := v.Sign(domain.Principal{UserID: "cust-1", Role: domain.RoleCustomer}, time.Hour)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing token", "/me", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"invalid token", "/me", "Bearer nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bearer header", "/me", "Bearer " + cust, http.StatusOK, ""},
		{"lowercase scheme", "/me", "bearer " + cust, http.StatusOK, ""},
		{"query token", "/me?token=" + tech, "", http.StatusOK, ""},
		{"role allowed", "/tech", "Bearer " + tech, http.StatusNoContent, ""},
		{"role refused", "/tech", "Bearer " + cust, http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("expected code %s, got %v", tt.wantCode, body["code"])
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	router := newTestRouter(NewTokenVerifier("secret", ""))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected the caller's request id echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

func TestIdempotency_NilClientPassesThrough(t *testing.T) {
	t.Parallel()
	calls := 0
	r := gin.New()
	r.POST("/rides", Idempotency(nil), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/rides", nil)
		req.Header.Set("Idempotency-Key", "same")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", w.Code)
		}
	}
	if calls != 2 {
		t.Errorf("expected both requests to reach the handler, got %d", calls)
	}
}
