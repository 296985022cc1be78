// Package domain define contratos e tipos de domínio para o rate limit por
// (identificador, endpoint).
//
// Este pacote não depende de net/http nem de implementações concretas.
// Aqui ficam o registro persistido (Record), a tabela de quotas, o algoritmo de
// janela fixa (Evaluate), a derivação do identificador do cliente e o erro
// tipado retornado quando a quota estoura.
package domain
