package ratelimit

import (
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// Route liga "MÉTODO padrão" a um endpoint lógico. Method "*" casa qualquer método;
// Pattern segue path.Match ("/api/jobs/*").
type Route struct {
	Method   string
	Pattern  string
	Endpoint string
}

// RouteTable resolve o endpoint lógico de uma requisição do gateway.
// A primeira rota que casa ganha; nada casando vira generalQuery.
type RouteTable []Route

// DefaultRoutes cobre as rotas de escrita do app de vagas.
func DefaultRoutes() RouteTable {
	return RouteTable{
		{Method: http.MethodPost, Pattern: "/api/sponsorship/check", Endpoint: domain.EndpointCheckCompanySponsorship},
		{Method: http.MethodPost, Pattern: "/api/sponsorship/companies", Endpoint: domain.EndpointAddSponsoredCompany},
		{Method: http.MethodPost, Pattern: "/api/jobs", Endpoint: domain.EndpointCreateJob},
		{Method: http.MethodPost, Pattern: "/api/applications", Endpoint: domain.EndpointCreateApplication},
	}
}

// ParseRoutes lê entradas no formato {"POST /api/jobs": "createJob"}.
// Padrões mais longos vêm primeiro, para o mais específico ganhar.
func ParseRoutes(entries map[string]string) (RouteTable, error) {
	table := make(RouteTable, 0, len(entries))
	for entry, endpoint := range entries {
		method, pattern, ok := strings.Cut(strings.TrimSpace(entry), " ")
		pattern = strings.TrimSpace(pattern)
		if !ok || pattern == "" {
			return nil, fmt.Errorf("route %q: expected \"METHOD /path\"", entry)
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("route %q: %w", entry, err)
		}
		if strings.TrimSpace(endpoint) == "" {
			return nil, fmt.Errorf("route %q: empty endpoint", entry)
		}
		table = append(table, Route{Method: strings.ToUpper(method), Pattern: pattern, Endpoint: endpoint})
	}
	sort.SliceStable(table, func(i, j int) bool {
		if len(table[i].Pattern) != len(table[j].Pattern) {
			return len(table[i].Pattern) > len(table[j].Pattern)
		}
		if table[i].Pattern != table[j].Pattern {
			return table[i].Pattern < table[j].Pattern
		}
		return table[i].Method < table[j].Method
	})
	return table, nil
}

func (t RouteTable) match(method, p string) (string, bool) {
	for _, rt := range t {
		if rt.Method != "*" && rt.Method != method {
			continue
		}
		if ok, _ := path.Match(rt.Pattern, p); ok {
			return rt.Endpoint, true
		}
	}
	return "", false
}

// Endpoint implementa EndpointFunc.
func (t RouteTable) Endpoint(r *http.Request) string {
	if ep, ok := t.match(r.Method, r.URL.Path); ok {
		return ep
	}
	return domain.EndpointGeneralQuery
}
