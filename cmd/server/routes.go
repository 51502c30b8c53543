package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	import_run "github.com/rubenpeq/BITZER-APP/http-server/import-run"
	getorders "github.com/rubenpeq/BITZER-APP/http-server/orders/get"
	getstatus "github.com/rubenpeq/BITZER-APP/http-server/status/get"
	"github.com/rubenpeq/BITZER-APP/internal/config"
	"github.com/rubenpeq/BITZER-APP/internal/middleware/auth"
	"github.com/rubenpeq/BITZER-APP/internal/storage/mysql"
	"github.com/rubenpeq/BITZER-APP/internal/xlsx"
)

func routes(cfg config.Config, log *slog.Logger, storage *mysql.Storage, reader *xlsx.Reader) *chi.Mux {
	router := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	router.Use(corsHandler.Handler)

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", getstatus.Health(cfg.Env))

	router.Route("/api", func(r chi.Router) {
		r.Get("/status", getstatus.Status(log, storage))
		r.Get("/orders", getorders.ListOrders(log, storage))
		r.Get("/orders/{orderNumber}", getorders.GetOrderDetails(log, storage))

		// Import runs mutate the whole archive schema; keep them behind
		// the admin credentials.
		r.Group(func(r chi.Router) {
			r.Use(auth.BasicAuth(cfg.AdminLogin, cfg.AdminPass))
			r.Post("/import", import_run.Run(log, storage, reader, cfg.OrdersDir))
		})
	})

	return router
}
