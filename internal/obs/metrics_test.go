package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/records/abc":               "/v1/records/:id",
		"/v1/records/abc/register":      "/v1/records/:id/register",
		"/v1/records/abc/cancel":        "/v1/records/:id/cancel",
		"/v1/records/abc/conclude":      "/v1/records/:id/conclude",
		"/v1/records/abc/audit":         "/v1/records/:id/audit",
		"/v1/records/abc/extra":         "/v1/records/abc/extra",
		"/v1/records":                   "/v1/records",
		"/v1/records/abc/audit?limit=5": "/v1/records/:id/audit",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
