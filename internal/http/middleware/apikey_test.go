package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func apiKeyRouter(opts APIKeyOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKey(opts))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doKey(r *gin.Engine, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAPIKey_Permissive(t *testing.T) {
	r := apiKeyRouter(APIKeyOptions{Key: "secret"})

	if w := doKey(r, ""); w.Code != http.StatusOK {
		t.Fatalf("missing header should pass when not required, got %d", w.Code)
	}
	if w := doKey(r, "secret"); w.Code != http.StatusOK {
		t.Fatalf("correct key got %d", w.Code)
	}
	w := doKey(r, "wrong")
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong key got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["message"] != "Could not validate API Key" || body["code"] != "forbidden" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAPIKey_Required(t *testing.T) {
	r := apiKeyRouter(APIKeyOptions{Key: "secret", Required: true})
	if w := doKey(r, ""); w.Code != http.StatusForbidden {
		t.Fatalf("missing header should be rejected, got %d", w.Code)
	}
	if w := doKey(r, "secret"); w.Code != http.StatusOK {
		t.Fatalf("correct key got %d", w.Code)
	}
}

func TestAPIKey_NoKeyConfigured(t *testing.T) {
	r := apiKeyRouter(APIKeyOptions{Required: true})
	if w := doKey(r, "anything"); w.Code != http.StatusOK {
		t.Fatalf("check should be off without a key, got %d", w.Code)
	}
}
