package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"conselho.org/internal/auth"
	"conselho.org/internal/infraction"
	"conselho.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("CONSELHO_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	records, err := infraction.NewService(infraction.NewInMemory())
	if err != nil {
		t.Fatalf("record service: %v", err)
	}
	users, err := auth.NewService(auth.NewInMemoryUsers())
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	for _, u := range []struct{ email, role string }{
		{"agent@conselho.org", "agent"},
		{"supervisor@conselho.org", "supervisor"},
		{"admin@conselho.org", "admin"},
	} {
		if _, err := users.Register(t.Context(), u.email, "senha-super-secreta", u.role); err != nil {
			t.Fatalf("seed user %s: %v", u.email, err)
		}
	}

	api := New(ReadyProbe{}, "test", records, users, stream.New())
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) patch(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPatch, path, body, headers)
}

func (c *apiClient) delete(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) login(email string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"email":    email,
		"password": "senha-super-secreta",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfoEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status: %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != serviceName {
		t.Fatalf("unexpected service name: %v", health["service"])
	}

	resp = api.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected readyz status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/info", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected info status: %d", resp.StatusCode)
	}
	info := decode[map[string]any](t, resp)
	if info["version"] != "test" {
		t.Fatalf("unexpected version: %v", info["version"])
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/records", map[string]any{
		"establishment": "Bar do Porto",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/login", map[string]any{
		"email":    "agent@conselho.org",
		"password": "wrong",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUserProvisioningRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)

	agent := api.login("agent@conselho.org")
	resp := api.post("/v1/auth/users", map[string]any{
		"email":    "new@conselho.org",
		"password": "senha-super-secreta",
		"role":     "agent",
	}, agent)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for agent, got %d", resp.StatusCode)
	}

	admin := api.login("admin@conselho.org")
	resp = api.post("/v1/auth/users", map[string]any{
		"email":    "new@conselho.org",
		"password": "senha-super-secreta",
		"role":     "agent",
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	user := decode[map[string]any](t, resp)
	if user["role"] != "agent" {
		t.Fatalf("unexpected role: %v", user["role"])
	}
}
