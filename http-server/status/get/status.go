package get

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

type Database interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

type DatabaseStatus struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

type ResponseStatus struct {
	Backend  string         `json:"backend"`
	Database DatabaseStatus `json:"database"`
}

// Health is the public liveness probe.
func Health(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok", "env": env})
	}
}

// Status reports backend and database health; the details field carries the
// database server version when connectivity is fine and the error otherwise.
func Status(log *slog.Logger, db Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.status.get.Status"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := ResponseStatus{Backend: "ok"}

		if err := db.Ping(ctx); err != nil {
			log.Error("database ping failed", slog.String("op", op), slog.String("error", err.Error()))
			resp.Database = DatabaseStatus{Status: "failed", Details: err.Error()}
			render.JSON(w, r, resp)
			return
		}

		resp.Database.Status = "ok"
		if version, err := db.Version(ctx); err == nil {
			resp.Database.Details = version
		}

		render.JSON(w, r, resp)
	}
}
