package import_run

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/rubenpeq/BITZER-APP/internal/service/importer"
)

type Request struct {
	BaseDir              string `json:"base_dir"`
	Preview              bool   `json:"preview"`
	Simulate             bool   `json:"simulate"`
	UpdateOrderNumPieces bool   `json:"update_order_num_pieces"`
}

type Response struct {
	Stats  *importer.Stats `json:"stats"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
}

// Run triggers an import run over the archive. The run executes synchronously
// on the request; archive imports are an operator action, not a hot path.
func Run(log *slog.Logger, store importer.ImportStorage, reader importer.WorkbookReader, defaultBaseDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.import_run.Run"

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		baseDir := req.BaseDir
		if baseDir == "" {
			baseDir = defaultBaseDir
		}

		imp := importer.New(log, store, reader, importer.Options{
			Preview:              req.Preview,
			Simulate:             req.Simulate,
			UpdateOrderNumPieces: req.UpdateOrderNumPieces,
		})

		stats, err := imp.Run(r.Context(), baseDir)
		if err != nil {
			log.Error("import run failed", slog.String("op", op),
				slog.String("base_dir", baseDir), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, Response{Stats: stats, Error: "import run failed"})
			return
		}

		render.JSON(w, r, Response{
			Stats:  stats,
			Status: strconv.Itoa(http.StatusOK),
		})
	}
}
