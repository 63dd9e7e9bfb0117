package httpapi

import (
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer token123", want: "token123"},
		{name: "padded", header: "  Bearer   token  ", want: "token"},
		{name: "empty", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "missing token", header: "Bearer   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	public := []string{"/healthz", "/readyz", "/metrics", "/openapi.yaml", "/v1/auth/login", "/v1/info", "/"}
	for _, p := range public {
		if !isPublicPath(p) {
			t.Fatalf("expected %q to be public", p)
		}
	}
	private := []string{"/v1/records", "/v1/records/abc", "/v1/stream", "/v1/auth/users"}
	for _, p := range private {
		if isPublicPath(p) {
			t.Fatalf("expected %q to require auth", p)
		}
	}
}
