package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rubenpeq/BITZER-APP/internal/storage"
)

const duplicateEntryErr = 1062

// querier lets the lookups run both on the pool (simulate mode) and inside
// the per-file transaction (write mode).
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findOrderByNumber(ctx context.Context, q querier, orderNumber int) (*storage.Order, error) {
	stmt := `SELECT id, order_number, material_number, start_date, end_date, num_pieces
	         FROM orders WHERE order_number = ?`

	var order storage.Order
	var endDate sql.NullTime

	err := q.QueryRowContext(ctx, stmt, orderNumber).Scan(
		&order.ID, &order.OrderNumber, &order.MaterialNumber, &order.StartDate, &endDate, &order.NumPieces)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if endDate.Valid {
		order.EndDate = &endDate.Time
	}
	return &order, nil
}

func findOperation(ctx context.Context, q querier, orderID int64, operationCode string) (*storage.Operation, error) {
	stmt := `SELECT id, order_id, operation_code, machine_id
	         FROM operations WHERE order_id = ? AND operation_code = ?`

	var operation storage.Operation
	var machineID sql.NullInt64

	err := q.QueryRowContext(ctx, stmt, orderID, operationCode).Scan(
		&operation.ID, &operation.OrderID, &operation.OperationCode, &machineID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if machineID.Valid {
		operation.MachineID = &machineID.Int64
	}
	return &operation, nil
}

func (s *Storage) FindOrderByNumber(ctx context.Context, orderNumber int) (*storage.Order, error) {
	const op = "storage.mysql.FindOrderByNumber"

	order, err := findOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func (s *Storage) FindOperation(ctx context.Context, orderID int64, operationCode string) (*storage.Operation, error) {
	const op = "storage.mysql.FindOperation"

	operation, err := findOperation(ctx, s.db, orderID, operationCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return operation, nil
}

// Begin opens the per-file import transaction.
func (s *Storage) Begin(ctx context.Context) (storage.ImportTx, error) {
	const op = "storage.mysql.Begin"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &importTx{tx: tx}, nil
}

// SetOrderNumPieces overwrites num_pieces for every order in totals in one
// transaction, keyed by order number. Orders the import never created or
// touched are left alone.
func (s *Storage) SetOrderNumPieces(ctx context.Context, totals map[int]int) error {
	const op = "storage.mysql.SetOrderNumPieces"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE orders SET num_pieces = ? WHERE order_number = ?`)
	if err != nil {
		return fmt.Errorf("%s: prepare statement: %w", op, err)
	}
	defer stmt.Close()

	for orderNumber, total := range totals {
		if _, err := stmt.ExecContext(ctx, total, orderNumber); err != nil {
			return fmt.Errorf("%s: order %d: %w", op, orderNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

type importTx struct {
	tx *sql.Tx
}

func (t *importTx) FindOrderByNumber(ctx context.Context, orderNumber int) (*storage.Order, error) {
	const op = "storage.mysql.importTx.FindOrderByNumber"

	order, err := findOrderByNumber(ctx, t.tx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func (t *importTx) FindOperation(ctx context.Context, orderID int64, operationCode string) (*storage.Operation, error) {
	const op = "storage.mysql.importTx.FindOperation"

	operation, err := findOperation(ctx, t.tx, orderID, operationCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return operation, nil
}

func (t *importTx) CreateOrder(ctx context.Context, order *storage.Order) (int64, error) {
	const op = "storage.mysql.importTx.CreateOrder"

	stmt := `INSERT INTO orders (order_number, material_number, start_date, end_date, num_pieces)
	         VALUES (?, ?, ?, ?, ?)`

	res, err := t.tx.ExecContext(ctx, stmt,
		order.OrderNumber, order.MaterialNumber, order.StartDate, order.EndDate, order.NumPieces)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntryErr {
			return 0, fmt.Errorf("%s: order %d: %w", op, order.OrderNumber, storage.ErrDuplicate)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.LastInsertId()
}

func (t *importTx) CreateOperation(ctx context.Context, operation *storage.Operation) (int64, error) {
	const op = "storage.mysql.importTx.CreateOperation"

	stmt := `INSERT INTO operations (order_id, operation_code, machine_id) VALUES (?, ?, ?)`

	res, err := t.tx.ExecContext(ctx, stmt, operation.OrderID, operation.OperationCode, operation.MachineID)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntryErr {
			return 0, fmt.Errorf("%s: order %d code %s: %w", op, operation.OrderID, operation.OperationCode, storage.ErrDuplicate)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.LastInsertId()
}

func (t *importTx) InsertTask(ctx context.Context, task *storage.Task) (int64, error) {
	const op = "storage.mysql.importTx.InsertTask"

	stmt := `INSERT INTO tasks (operation_id, process_type, start_at, end_at, num_machines, num_benches,
	                            good_pieces, bad_pieces, operator_user_id, operator_badge_id, notes)
	         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := t.tx.ExecContext(ctx, stmt,
		task.OperationID, task.ProcessType, task.StartAt, task.EndAt, task.NumMachines, task.NumBenches,
		task.GoodPieces, task.BadPieces, task.OperatorUserID, task.OperatorBadgeID, task.Notes)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.LastInsertId()
}

func (t *importTx) Commit() error {
	return t.tx.Commit()
}

func (t *importTx) Rollback() error {
	return t.tx.Rollback()
}
