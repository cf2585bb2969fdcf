package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/config"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"https://app.stitchpay.test"}},
		JWT: config.JWTConfig{
			Secret:            "router-secret",
			Issuer:            "stitchpay",
			ExpirationMinutes: 30,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, metrics http.Handler) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, nil, metrics, Services{})
}

func tokenFor(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func do(router http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := do(router, http.MethodGet, path, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
		if resp.Header().Get("X-StitchPay-Env") != "test" {
			t.Fatalf("%s: missing env header", path)
		}
	}
}

func TestPublicPing(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)
	resp := do(router, http.MethodGet, "/api/public/ping", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateRoutesRequireToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, nil)

	resp := do(router, http.MethodGet, "/api/v1/ping", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	resp = do(router, http.MethodGet, "/api/v1/ping", tokenFor(t, cfg, enums.ActorRoleCustomer))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"role":"customer"`) {
		t.Fatalf("expected caller role in body, got %s", resp.Body.String())
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, nil)
	orderID := uuid.NewString()

	cases := []struct {
		role enums.ActorRole
		want int
	}{
		{role: enums.ActorRoleCustomer, want: http.StatusForbidden},
		{role: enums.ActorRoleTailor, want: http.StatusForbidden},
		// Services are not wired here; reaching the handler is what matters.
		{role: enums.ActorRoleAdmin, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		resp := do(router, http.MethodGet, "/api/admin/v1/orders/"+orderID+"/escrow/validate", tokenFor(t, cfg, tc.role))
		if resp.Code != tc.want {
			t.Fatalf("role %s: expected %d got %d", tc.role, tc.want, resp.Code)
		}
	}
}

func TestDomainRoutesAreMounted(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, nil)
	customer := tokenFor(t, cfg, enums.ActorRoleCustomer)
	orderID := uuid.NewString()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/orders/" + orderID + "/escrow"},
		{http.MethodPost, "/api/v1/orders/" + orderID + "/dispute"},
		{http.MethodGet, "/api/v1/orders/" + orderID + "/milestones/pending"},
		{http.MethodPost, "/api/v1/orders/" + orderID + "/milestones"},
		{http.MethodPost, "/api/v1/milestones/" + uuid.NewString() + "/resolve"},
	}
	for _, rt := range routes {
		resp := do(router, rt.method, rt.path, customer)
		if resp.Code == http.StatusNotFound || resp.Code == http.StatusMethodNotAllowed {
			t.Fatalf("%s %s not routed: %d", rt.method, rt.path, resp.Code)
		}
	}
}

func TestCronTriggerRefusesWithoutSecret(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)
	resp := do(router, http.MethodPost, "/api/v1/cron/auto-approve", "anything")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestCronTriggerRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Cron.Secret = "cron-secret"
	router := newTestRouter(t, cfg, nil)
	resp := do(router, http.MethodPost, "/api/v1/cron/auto-approve", "nope")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestMetricsEndpointIsOptional(t *testing.T) {
	resp := do(newTestRouter(t, testConfig(), nil), http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", resp.Code)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	resp = do(newTestRouter(t, testConfig(), metrics), http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "# metrics") {
		t.Fatalf("expected metrics body, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	req.Header.Set("Origin", "https://app.stitchpay.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.stitchpay.test" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}
