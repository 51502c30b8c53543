package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rubenpeq/BITZER-APP/internal/storage"
)

// ListOrders returns orders whose start_date falls in the given month, or,
// when search is set, orders whose number matches it regardless of month.
func (s *Storage) ListOrders(ctx context.Context, year int, month int, search string) ([]*storage.Order, error) {
	const op = "storage.mysql.ListOrders"

	var stmt string
	var args []any

	if search != "" {
		stmt = `SELECT id, order_number, material_number, start_date, end_date, num_pieces
		        FROM orders
		        WHERE CAST(order_number AS CHAR) LIKE ?
		        ORDER BY order_number`
		args = append(args, "%"+search+"%")
	} else {
		startOfMonth := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		endOfMonth := startOfMonth.AddDate(0, 1, 0)

		stmt = `SELECT id, order_number, material_number, start_date, end_date, num_pieces
		        FROM orders
		        WHERE start_date >= ? AND start_date < ?
		        ORDER BY order_number`
		args = []any{startOfMonth, endOfMonth}
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query orders: %w", op, err)
	}
	defer rows.Close()

	var orders []*storage.Order
	for rows.Next() {
		var order storage.Order
		var endDate sql.NullTime

		err := rows.Scan(&order.ID, &order.OrderNumber, &order.MaterialNumber, &order.StartDate, &endDate, &order.NumPieces)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if endDate.Valid {
			order.EndDate = &endDate.Time
		}

		orders = append(orders, &order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: scan orders: %w", op, err)
	}

	return orders, nil
}

func (s *Storage) ListOperations(ctx context.Context, orderID int64) ([]*storage.Operation, error) {
	const op = "storage.mysql.ListOperations"

	stmt := `SELECT id, order_id, operation_code, machine_id
	         FROM operations WHERE order_id = ? ORDER BY operation_code`

	rows, err := s.db.QueryContext(ctx, stmt, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: query operations: %w", op, err)
	}
	defer rows.Close()

	var operations []*storage.Operation
	for rows.Next() {
		var operation storage.Operation
		var machineID sql.NullInt64

		err := rows.Scan(&operation.ID, &operation.OrderID, &operation.OperationCode, &machineID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if machineID.Valid {
			operation.MachineID = &machineID.Int64
		}

		operations = append(operations, &operation)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: scan operations: %w", op, err)
	}

	return operations, nil
}

// ListTasksByOrder returns every task of every operation of the order, in
// insertion order.
func (s *Storage) ListTasksByOrder(ctx context.Context, orderID int64) ([]*storage.Task, error) {
	const op = "storage.mysql.ListTasksByOrder"

	stmt := `SELECT t.id, t.operation_id, t.process_type, t.start_at, t.end_at, t.num_machines, t.num_benches,
	                t.good_pieces, t.bad_pieces, t.operator_user_id, t.operator_badge_id, t.notes
	         FROM tasks t
	         JOIN operations o ON o.id = t.operation_id
	         WHERE o.order_id = ?
	         ORDER BY t.id`

	rows, err := s.db.QueryContext(ctx, stmt, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: query tasks: %w", op, err)
	}
	defer rows.Close()

	var tasks []*storage.Task
	for rows.Next() {
		var task storage.Task
		var startAt, endAt sql.NullTime
		var numMachines, numBenches, goodPieces, badPieces sql.NullInt64
		var operatorUserID, operatorBadgeID sql.NullInt64
		var notes sql.NullString

		err := rows.Scan(&task.ID, &task.OperationID, &task.ProcessType, &startAt, &endAt,
			&numMachines, &numBenches, &goodPieces, &badPieces, &operatorUserID, &operatorBadgeID, &notes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if startAt.Valid {
			task.StartAt = &startAt.Time
		}
		if endAt.Valid {
			task.EndAt = &endAt.Time
		}
		task.NumMachines = nullInt(numMachines)
		task.NumBenches = nullInt(numBenches)
		task.GoodPieces = nullInt(goodPieces)
		task.BadPieces = nullInt(badPieces)
		if operatorUserID.Valid {
			task.OperatorUserID = &operatorUserID.Int64
		}
		if operatorBadgeID.Valid {
			task.OperatorBadgeID = &operatorBadgeID.Int64
		}
		if notes.Valid {
			task.Notes = &notes.String
		}

		tasks = append(tasks, &task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: scan tasks: %w", op, err)
	}

	return tasks, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
