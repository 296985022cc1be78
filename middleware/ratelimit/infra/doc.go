// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryRepository: contadores em memória (um processo só)
//   - RedisRepository: contadores em hash no Redis, Hit atômico via script Lua
//   - PostgresRepository: tabela com chave (identifier, endpoint), Hit com lock de linha
//   - StripedLocker: locks por chave (murmur3 + semáforos em channel)
//   - Janitor: varredura de retenção periódica sem sobreposição
package infra
