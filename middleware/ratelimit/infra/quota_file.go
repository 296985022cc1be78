package infra

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// quotaFile é o formato do arquivo de quotas:
//
//	quotas:
//	  createJob:
//	    maxRequests: 20
//	    windowMs: 60000
//	    description: Job creation
type quotaFile struct {
	Quotas map[string]quotaEntry `yaml:"quotas"`
}

type quotaEntry struct {
	MaxRequests int    `yaml:"maxRequests"`
	WindowMs    int64  `yaml:"windowMs"`
	Description string `yaml:"description"`
}

// ParseQuotas decodifica o YAML em modo estrito (campo desconhecido é erro).
func ParseQuotas(r io.Reader) (domain.QuotaTable, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f quotaFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode quotas: %w", err)
	}

	table := make(domain.QuotaTable, len(f.Quotas))
	for name, e := range f.Quotas {
		table[name] = domain.Quota{
			MaxRequests: e.MaxRequests,
			Window:      time.Duration(e.WindowMs) * time.Millisecond,
			Description: e.Description,
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadQuotaFile lê o arquivo e sobrepõe suas entradas à tabela de produção.
// path vazio devolve a tabela de produção.
func LoadQuotaFile(path string) (domain.QuotaTable, error) {
	if path == "" {
		return domain.DefaultQuotas(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quotas file: %w", err)
	}
	overrides, err := ParseQuotas(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return domain.DefaultQuotas().Merge(overrides), nil
}
