package main

// Upstream "burro" para validar o gateway na mão: responde qualquer rota do app
// de vagas e loga o que chegou (identificador, request id).
//
//	UPSTREAM_URL=http://localhost:8081 go run ./cmd/gateway
//	go run ./teste-validacao/servidor-burrao
//	for i in $(seq 1 25); do curl -s -o /dev/null -w "%{http_code}\n" -X POST localhost:8080/api/jobs; done

import (
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"jobboard-gateway/middleware/requestid"
)

func main() {
	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	var hits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		log.Info("request received",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(requestid.Header)),
			zap.String("forwarded_for", r.Header.Get("X-Forwarded-For")),
			zap.Int64("hits", n),
		)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		status := http.StatusOK
		if r.Method == http.MethodPost {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "path": r.URL.Path, "hits": n})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Info("servidor burrão rodando", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
