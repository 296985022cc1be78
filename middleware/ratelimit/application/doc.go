// Package application contém os casos de uso do rate limit por endpoint:
// Check (decisão allow/deny), Enforce (decisão convertida em erro tipado),
// Status (introspecção somente-leitura) e Cleanup (varredura de retenção).
//
// Ele depende apenas do pacote domain e não conhece net/http nem os stores concretos.
package application
