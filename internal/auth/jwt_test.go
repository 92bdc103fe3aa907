package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type testKeys struct {
	private   *rsa.PrivateKey
	publicPEM string
}

func generateTestKeys(t *testing.T) testKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return testKeys{private: key, publicPEM: string(pemBytes)}
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestNewJWTValidator(t *testing.T) {
	keys := generateTestKeys(t)

	tests := []struct {
		name         string
		publicKeyPEM string
		expectError  bool
	}{
		{name: "valid PKIX key", publicKeyPEM: keys.publicPEM, expectError: false},
		{name: "invalid PEM format", publicKeyPEM: "invalid-pem", expectError: true},
		{name: "empty public key", publicKeyPEM: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator, err := NewJWTValidator(tt.publicKeyPEM, "test-issuer", "test-audience")
			if tt.expectError {
				if err == nil {
					t.Error("NewJWTValidator() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJWTValidator() unexpected error: %v", err)
			}
			if validator.issuer != "test-issuer" || validator.audience != "test-audience" {
				t.Errorf("validator = %q/%q", validator.issuer, validator.audience)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	keys := generateTestKeys(t)
	validator, err := NewJWTValidator(keys.publicPEM, "test-issuer", "test-audience")
	if err != nil {
		t.Fatalf("NewJWTValidator() error: %v", err)
	}

	goodClaims := jwt.MapClaims{
		"iss":       "test-issuer",
		"aud":       "test-audience",
		"tenant_id": "tenant-123",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name        string
		token       string
		wantTenant  string
		expectError bool
	}{
		{
			name:       "valid token",
			token:      signToken(t, keys.private, goodClaims),
			wantTenant: "tenant-123",
		},
		{
			name: "wrong issuer",
			token: signToken(t, keys.private, jwt.MapClaims{
				"iss": "someone-else", "aud": "test-audience", "tenant_id": "tenant-123",
			}),
			expectError: true,
		},
		{
			name: "wrong audience",
			token: signToken(t, keys.private, jwt.MapClaims{
				"iss": "test-issuer", "aud": "someone-else", "tenant_id": "tenant-123",
			}),
			expectError: true,
		},
		{
			name: "missing tenant_id claim",
			token: signToken(t, keys.private, jwt.MapClaims{
				"iss": "test-issuer", "aud": "test-audience",
			}),
			expectError: true,
		},
		{
			name: "expired token",
			token: signToken(t, keys.private, jwt.MapClaims{
				"iss": "test-issuer", "aud": "test-audience", "tenant_id": "tenant-123",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			expectError: true,
		},
		{name: "malformed token", token: "header.payload", expectError: true},
		{name: "empty token", token: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenantID, err := validator.ValidateToken(tt.token)
			if tt.expectError {
				if err == nil {
					t.Error("ValidateToken() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateToken() unexpected error: %v", err)
			}
			if tenantID != tt.wantTenant {
				t.Errorf("tenant = %q, want %q", tenantID, tt.wantTenant)
			}
		})
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keys := generateTestKeys(t)
	validator, err := NewJWTValidator(keys.publicPEM, "test-issuer", "test-audience")
	if err != nil {
		t.Fatalf("NewJWTValidator() error: %v", err)
	}

	router := gin.New()
	router.Use(validator.GinMiddleware())
	router.GET("/v1/stats", func(c *gin.Context) {
		tenantID, _ := GetTenantIDFromContext(c.Request.Context())
		c.Header("X-Resolved-Tenant", tenantID)
		c.Status(http.StatusOK)
	})

	validToken := signToken(t, keys.private, jwt.MapClaims{
		"iss": "test-issuer", "aud": "test-audience", "tenant_id": "tenant-abc",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantTenant string
	}{
		{
			name:       "valid bearer token",
			headers:    map[string]string{"Authorization": "Bearer " + validToken},
			wantStatus: http.StatusOK,
			wantTenant: "tenant-abc",
		},
		{
			name:       "tenant header from edge proxy",
			headers:    map[string]string{"x-tenant-id": "tenant-from-proxy"},
			wantStatus: http.StatusOK,
			wantTenant: "tenant-from-proxy",
		},
		{
			name:       "missing authorization header",
			headers:    map[string]string{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			headers:    map[string]string{"Authorization": "Basic abc"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			headers:    map[string]string{"Authorization": "Bearer not-a-jwt"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/stats", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantTenant != "" && w.Header().Get("X-Resolved-Tenant") != tt.wantTenant {
				t.Errorf("tenant = %q, want %q", w.Header().Get("X-Resolved-Tenant"), tt.wantTenant)
			}
		})
	}
}

func TestGetTenantIDFromContext(t *testing.T) {
	if _, ok := GetTenantIDFromContext(context.Background()); ok {
		t.Error("empty context should not carry a tenant")
	}
	ctx := context.WithValue(context.Background(), TenantIDKey, "tenant-123")
	if got, ok := GetTenantIDFromContext(ctx); !ok || got != "tenant-123" {
		t.Errorf("GetTenantIDFromContext() = (%q, %v)", got, ok)
	}
}
