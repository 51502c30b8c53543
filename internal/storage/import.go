package storage

import (
	"context"
	"errors"
)

// ErrDuplicate is returned by the create methods when the natural key
// (orders.order_number, operations order_id+operation_code) already exists.
// The importer treats it as "created by someone else" and re-fetches.
var ErrDuplicate = errors.New("duplicate natural key")

// ImportTx is the per-file unit of work: every order/operation/task touched
// while importing one workbook commits or rolls back together.
type ImportTx interface {
	FindOrderByNumber(ctx context.Context, orderNumber int) (*Order, error)
	CreateOrder(ctx context.Context, order *Order) (int64, error)
	FindOperation(ctx context.Context, orderID int64, operationCode string) (*Operation, error)
	CreateOperation(ctx context.Context, operation *Operation) (int64, error)
	InsertTask(ctx context.Context, task *Task) (int64, error)
	Commit() error
	Rollback() error
}
