// Package ratelimit fornece o adapter HTTP (net/http) do rate limit de janela fixa.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (check/enforce, status, cleanup) sem net/http
//   - infra: stores concretos (memória, Redis, Postgres), locker, janitor, quotas
//   - ratelimit (este pacote): middleware HTTP, identificação do cliente, tabela
//     de rotas e rotas administrativas
//
// Fluxo no gateway:
//
//  1. Identifica o cliente (override, usuário autenticado, IP)
//  2. Resolve o endpoint lógico pela RouteTable
//  3. Chama application.Service.Enforce
//  4. Se negado, responde 429 com Retry-After; se o store falhou com
//     fail-closed, 503
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// A configuração do binário gateway (cmd/gateway) vem de config.yaml e de
// variáveis de ambiente, como STORE_BACKEND, REDIS_ADDR e RATELIMIT_FAILURE_POLICY.
package ratelimit
