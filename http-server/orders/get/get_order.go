package get

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/rubenpeq/BITZER-APP/internal/storage"
)

type OrderDetails interface {
	FindOrderByNumber(ctx context.Context, orderNumber int) (*storage.Order, error)
	ListOperations(ctx context.Context, orderID int64) ([]*storage.Operation, error)
	ListTasksByOrder(ctx context.Context, orderID int64) ([]*storage.Task, error)
}

// GetOrderDetails serves GET /api/orders/{orderNumber}: the order plus its
// operations and tasks, fetched concurrently.
func GetOrderDetails(log *slog.Logger, details OrderDetails) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.orders.get.GetOrderDetails"

		orderNumber, err := strconv.Atoi(chi.URLParam(r, "orderNumber"))
		if err != nil {
			http.Error(w, "Invalid order number", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		order, err := details.FindOrderByNumber(ctx, orderNumber)
		if err != nil {
			log.Error("failed to get order", slog.String("op", op),
				slog.Int("order_number", orderNumber), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if order == nil {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}

		result := storage.OrderDetails{Order: order}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			operations, err := details.ListOperations(gctx, order.ID)
			result.Operations = operations
			return err
		})
		g.Go(func() error {
			tasks, err := details.ListTasksByOrder(gctx, order.ID)
			result.Tasks = tasks
			return err
		})

		if err := g.Wait(); err != nil {
			log.Error("failed to get order details", slog.String("op", op),
				slog.Int("order_number", orderNumber), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, result)
	}
}
