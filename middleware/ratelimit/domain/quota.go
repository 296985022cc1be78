package domain

import (
	"fmt"
	"time"
)

// Nomes de endpoint usados pelos handlers da aplicação.
const (
	EndpointCheckCompanySponsorship = "checkCompanySponsorship"
	EndpointAddSponsoredCompany     = "addSponsoredCompany"
	EndpointCreateJob               = "createJob"
	EndpointCreateApplication       = "createApplication"
	EndpointGeneralQuery            = "generalQuery"
)

type Quota struct {
	MaxRequests int
	Window      time.Duration
	Description string
}

func (q Quota) WindowMs() int64 { return q.Window.Milliseconds() }

func (q Quota) Validate() error {
	if q.MaxRequests <= 0 {
		return fmt.Errorf("%w: maxRequests must be > 0, got %d", ErrInvalidQuota, q.MaxRequests)
	}
	if q.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be >= 1ms, got %s", ErrInvalidQuota, q.Window)
	}
	return nil
}

// QuotaTable mapeia nome de endpoint para quota. É lida apenas em runtime:
// a consulta é sempre por nome exato, sem wildcard nem hierarquia.
type QuotaTable map[string]Quota

var generalQueryQuota = Quota{MaxRequests: 50, Window: time.Minute, Description: "General query operations"}

// DefaultQuotas devolve a tabela usada em produção.
func DefaultQuotas() QuotaTable {
	return QuotaTable{
		EndpointCheckCompanySponsorship: {MaxRequests: 10, Window: time.Minute, Description: "Company sponsorship checks"},
		EndpointAddSponsoredCompany:     {MaxRequests: 5, Window: time.Minute, Description: "Adding sponsored companies (admin)"},
		EndpointCreateJob:               {MaxRequests: 20, Window: time.Minute, Description: "Job creation"},
		EndpointCreateApplication:       {MaxRequests: 15, Window: time.Minute, Description: "Application creation"},
		EndpointGeneralQuery:            generalQueryQuota,
	}
}

// Resolve devolve a quota do endpoint. Nome desconhecido cai silenciosamente
// em generalQuery (typo de configuração não derruba o handler).
func (t QuotaTable) Resolve(endpoint string) Quota {
	if q, ok := t[endpoint]; ok {
		return q
	}
	if q, ok := t[EndpointGeneralQuery]; ok {
		return q
	}
	return generalQueryQuota
}

// Merge devolve uma nova tabela com as entradas de other sobrescrevendo as de t.
func (t QuotaTable) Merge(other QuotaTable) QuotaTable {
	out := make(QuotaTable, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (t QuotaTable) Validate() error {
	for name, q := range t {
		if name == "" {
			return fmt.Errorf("%w: empty endpoint name", ErrInvalidQuota)
		}
		if err := q.Validate(); err != nil {
			return fmt.Errorf("endpoint %q: %w", name, err)
		}
	}
	return nil
}
