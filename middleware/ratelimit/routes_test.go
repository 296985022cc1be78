package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"jobboard-gateway/middleware/ratelimit/domain"
)

func TestDefaultRoutes(t *testing.T) {
	table := DefaultRoutes()

	cases := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/jobs", domain.EndpointCreateJob},
		{http.MethodGet, "/api/jobs", domain.EndpointGeneralQuery},
		{http.MethodPost, "/api/applications", domain.EndpointCreateApplication},
		{http.MethodPost, "/api/sponsorship/check", domain.EndpointCheckCompanySponsorship},
		{http.MethodPost, "/api/sponsorship/companies", domain.EndpointAddSponsoredCompany},
		{http.MethodGet, "/blog/posts", domain.EndpointGeneralQuery},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(tc.method, "http://example"+tc.path, nil)
		if got := table.Endpoint(r); got != tc.want {
			t.Fatalf("%s %s: expected %q, got %q", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestParseRoutes_MostSpecificWins(t *testing.T) {
	table, err := ParseRoutes(map[string]string{
		"* /api/jobs/*":          "jobQuery",
		"post /api/jobs/*/apply": domain.EndpointCreateApplication,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "http://example/api/jobs/7/apply", nil)
	if got := table.Endpoint(r); got != domain.EndpointCreateApplication {
		t.Fatalf("expected createApplication, got %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "http://example/api/jobs/7", nil)
	if got := table.Endpoint(r); got != "jobQuery" {
		t.Fatalf("expected jobQuery, got %q", got)
	}
}

func TestParseRoutes_Invalid(t *testing.T) {
	bad := []map[string]string{
		{"/api/jobs": domain.EndpointCreateJob},
		{"POST /api/[jobs": domain.EndpointCreateJob},
		{"POST /api/jobs": ""},
	}
	for _, entries := range bad {
		if _, err := ParseRoutes(entries); err == nil {
			t.Fatalf("expected error for %v", entries)
		}
	}
}
