package storage

import "time"

// ProcessTypeProcessing is the only process type the historical importer
// produces; live tasks created through the API may carry other types.
const ProcessTypeProcessing = "PROCESSING"

type Order struct {
	ID             int64      `json:"id"`
	OrderNumber    int        `json:"order_number"`
	MaterialNumber int        `json:"material_number"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	NumPieces      int        `json:"num_pieces"`
}

type Operation struct {
	ID            int64  `json:"id"`
	OrderID       int64  `json:"order_id"`
	OperationCode string `json:"operation_code"`
	MachineID     *int64 `json:"machine_id"`
}

type Task struct {
	ID          int64      `json:"id"`
	OperationID int64      `json:"operation_id"`
	ProcessType string     `json:"process_type"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	NumMachines *int       `json:"num_machines"`
	NumBenches  *int       `json:"num_benches"`
	GoodPieces  *int       `json:"good_pieces"`
	BadPieces   *int       `json:"bad_pieces"`

	OperatorUserID  *int64  `json:"operator_user_id"`
	OperatorBadgeID *int64  `json:"operator_badge_id"`
	Notes           *string `json:"notes"`
}

type OrderDetails struct {
	Order      *Order       `json:"order"`
	Operations []*Operation `json:"operations"`
	Tasks      []*Task      `json:"tasks"`
}
