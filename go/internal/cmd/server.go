package main

import (
	"fmt"
	"net/http"

	"github.com/mcdev12/arena/go/internal/api"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(services *Services, port string) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{api.ErrorCodeHeader},
	})

	services.API.RegisterRoutes(mux)
	services.RPC.Register(mux)
	services.Gateway.RegisterRoutes(mux)
	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, "OK %d active\n", services.Workspaces.Active()); err != nil {
			log.Debug().Err(err).Msg("failed to write health check response")
		}
	})
}
