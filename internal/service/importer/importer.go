package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rubenpeq/BITZER-APP/internal/storage"
)

// workbookExt is the fixed extension of the archive workbooks.
const workbookExt = ".xlsm"

// WorkbookReader exposes a workbook as a grid of typed cells: float64 for
// numeric cells, string for text, nil for empty.
type WorkbookReader interface {
	Grid(path string) ([][]any, error)
}

// ImportStorage is what the importer needs from the database. The Find
// methods return (nil, nil) when the record does not exist; Begin opens the
// per-file transaction.
type ImportStorage interface {
	FindOrderByNumber(ctx context.Context, orderNumber int) (*storage.Order, error)
	FindOperation(ctx context.Context, orderID int64, operationCode string) (*storage.Operation, error)
	Begin(ctx context.Context) (storage.ImportTx, error)
	SetOrderNumPieces(ctx context.Context, totals map[int]int) error
}

// Options selects the run mode. Preview wins over Simulate; with neither set
// the run writes. UpdateOrderNumPieces enables the post-import aggregation
// pass that overwrites order piece totals with the sum of imported good
// pieces.
type Options struct {
	Preview              bool
	Simulate             bool
	UpdateOrderNumPieces bool
}

// Stats is the run summary.
type Stats struct {
	RunID              string `json:"run_id"`
	OrdersCreated      int    `json:"orders_created"`
	OrdersExisting     int    `json:"orders_existing"`
	OperationsCreated  int    `json:"operations_created"`
	OperationsExisting int    `json:"operations_existing"`
	TasksInserted      int    `json:"tasks_inserted"`
	FilesSkipped       int    `json:"files_skipped"`
	FilesFailed        int    `json:"files_failed"`
}

type Importer struct {
	log    *slog.Logger
	store  ImportStorage
	reader WorkbookReader
	opts   Options
	now    func() time.Time
}

func New(log *slog.Logger, store ImportStorage, reader WorkbookReader, opts Options) *Importer {
	return &Importer{
		log:    log,
		store:  store,
		reader: reader,
		opts:   opts,
		now:    time.Now,
	}
}

// Run walks baseDir for workbooks and imports them one by one in lexicographic
// path order. Each file is an independent unit of work: a corrupt or locked
// file is logged and the run continues. Only a missing base directory or an
// unusable storage aborts the whole run.
func (im *Importer) Run(ctx context.Context, baseDir string) (*Stats, error) {
	const op = "importer.Run"

	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%s: base dir: %w", op, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: base dir %s is not a directory", op, baseDir)
	}
	if !im.opts.Preview && im.store == nil {
		return nil, fmt.Errorf("%s: storage is required outside preview mode", op)
	}

	files, err := im.discover(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := &Stats{RunID: uuid.NewString()}
	orderGoodPieces := make(map[int]int)
	fileNumPieces := make(map[int]int)

	im.log.Info("import run started",
		slog.String("run_id", stats.RunID),
		slog.String("base_dir", baseDir),
		slog.Int("files", len(files)),
		slog.Bool("preview", im.opts.Preview),
		slog.Bool("simulate", im.opts.Simulate),
	)

	for _, path := range files {
		im.processFile(ctx, path, stats, orderGoodPieces, fileNumPieces)
	}

	if !im.opts.Preview && !im.opts.Simulate && im.opts.UpdateOrderNumPieces && len(orderGoodPieces) > 0 {
		for orderNumber, total := range orderGoodPieces {
			im.log.Info("setting order num_pieces from imported good pieces",
				slog.Int("order_number", orderNumber), slog.Int("num_pieces", total))
		}
		if err := im.store.SetOrderNumPieces(ctx, orderGoodPieces); err != nil {
			return stats, fmt.Errorf("%s: aggregate num_pieces: %w", op, err)
		}
	}

	for orderNumber, n := range fileNumPieces {
		im.log.Debug("file-declared order num_pieces",
			slog.Int("order_number", orderNumber), slog.Int("num_pieces", n))
	}

	im.log.Info("import run finished",
		slog.String("run_id", stats.RunID),
		slog.Int("orders_created", stats.OrdersCreated),
		slog.Int("orders_existing", stats.OrdersExisting),
		slog.Int("operations_created", stats.OperationsCreated),
		slog.Int("operations_existing", stats.OperationsExisting),
		slog.Int("tasks_inserted", stats.TasksInserted),
		slog.Int("files_skipped", stats.FilesSkipped),
		slog.Int("files_failed", stats.FilesFailed),
	)

	return stats, nil
}

func intOrNone(v *int) string {
	if v == nil {
		return "none"
	}
	return strconv.Itoa(*v)
}

func (im *Importer) discover(baseDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), workbookExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (im *Importer) processFile(ctx context.Context, path string, stats *Stats, orderGoodPieces, fileNumPieces map[int]int) {
	monthStart := InferMonthStart(path, im.now())

	orderNumber, operationCode, ok := InferOrderOperation(filepath.Base(path))
	if !ok {
		im.log.Warn("skipping file, name does not match <order>_<operation>", slog.String("file", path))
		stats.FilesSkipped++
		return
	}

	grid, err := im.reader.Grid(path)
	if err != nil {
		im.log.Error("failed to read workbook",
			slog.String("file", path),
			slog.Int("order_number", orderNumber),
			slog.String("operation_code", operationCode),
			slog.String("error", err.Error()))
		stats.FilesFailed++
		return
	}

	numPiecesFromFile := OrderNumPieces(grid)
	rows := ExtractRows(grid, monthStart)

	accumulate := func() {
		for _, r := range rows {
			if r.GoodPieces != nil && *r.GoodPieces != 0 {
				orderGoodPieces[orderNumber] += *r.GoodPieces
			}
		}
		if numPiecesFromFile != nil {
			if _, seen := fileNumPieces[orderNumber]; !seen {
				fileNumPieces[orderNumber] = *numPiecesFromFile
			}
		}
	}

	switch {
	case im.opts.Preview:
		im.log.Info("preview",
			slog.String("file", path),
			slog.Time("month_start", monthStart),
			slog.Int("order_number", orderNumber),
			slog.String("operation_code", operationCode),
			slog.Int("rows", len(rows)),
			slog.String("file_num_pieces", intOrNone(numPiecesFromFile)))
		stats.TasksInserted += len(rows)
		accumulate()

	case im.opts.Simulate:
		if err := im.simulateFile(ctx, orderNumber, operationCode, stats); err != nil {
			im.log.Error("simulate lookup failed",
				slog.String("file", path),
				slog.Int("order_number", orderNumber),
				slog.String("operation_code", operationCode),
				slog.String("error", err.Error()))
			stats.FilesFailed++
			return
		}
		stats.TasksInserted += len(rows)
		accumulate()

	default:
		createdOrder, createdOperation, err := im.writeFile(ctx, orderNumber, operationCode, monthStart, numPiecesFromFile, rows)
		if err != nil {
			im.log.Error("failed to import file, rolled back",
				slog.String("file", path),
				slog.Int("order_number", orderNumber),
				slog.String("operation_code", operationCode),
				slog.String("error", err.Error()))
			stats.FilesFailed++
			return
		}
		if createdOrder {
			stats.OrdersCreated++
			im.log.Info("created order",
				slog.Int("order_number", orderNumber),
				slog.String("file_num_pieces", intOrNone(numPiecesFromFile)))
		} else {
			stats.OrdersExisting++
		}
		if createdOperation {
			stats.OperationsCreated++
			im.log.Info("created operation",
				slog.Int("order_number", orderNumber),
				slog.String("operation_code", operationCode))
		} else {
			stats.OperationsExisting++
		}
		stats.TasksInserted += len(rows)
		accumulate()
	}
}

// simulateFile performs the real natural-key lookups without opening a
// transaction, so created-vs-existing counts are accurate with no writes.
func (im *Importer) simulateFile(ctx context.Context, orderNumber int, operationCode string, stats *Stats) error {
	order, err := im.store.FindOrderByNumber(ctx, orderNumber)
	if err != nil {
		return err
	}
	if order == nil {
		stats.OrdersCreated++
		stats.OperationsCreated++
		return nil
	}
	stats.OrdersExisting++

	operation, err := im.store.FindOperation(ctx, order.ID, operationCode)
	if err != nil {
		return err
	}
	if operation == nil {
		stats.OperationsCreated++
	} else {
		stats.OperationsExisting++
	}
	return nil
}

// writeFile imports one workbook inside a single transaction. Everything the
// file contributes commits together or not at all.
func (im *Importer) writeFile(ctx context.Context, orderNumber int, operationCode string, monthStart time.Time, numPiecesFromFile *int, rows []TaskRow) (createdOrder, createdOperation bool, err error) {
	tx, err := im.store.Begin(ctx)
	if err != nil {
		return false, false, err
	}
	defer tx.Rollback()

	order, createdOrder, err := im.ensureOrder(ctx, tx, orderNumber, monthStart, numPiecesFromFile)
	if err != nil {
		return false, false, err
	}

	operation, createdOperation, err := im.ensureOperation(ctx, tx, order.ID, operationCode)
	if err != nil {
		return false, false, err
	}

	for _, row := range rows {
		task := &storage.Task{
			OperationID: operation.ID,
			ProcessType: storage.ProcessTypeProcessing,
			StartAt:     row.StartAt,
			EndAt:       row.EndAt,
			NumMachines: row.NumMachines,
			NumBenches:  row.NumBenches,
			GoodPieces:  row.GoodPieces,
			BadPieces:   row.BadPieces,
		}
		if _, err := tx.InsertTask(ctx, task); err != nil {
			return false, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, false, err
	}
	return createdOrder, createdOperation, nil
}

// ensureOrder looks the order up by its natural key and creates it when
// absent. A first file never overwrites start_date or num_pieces of an order
// a previous file created. A duplicate-key failure on create means a
// concurrent run got there first; the order is re-fetched instead.
func (im *Importer) ensureOrder(ctx context.Context, tx storage.ImportTx, orderNumber int, monthStart time.Time, numPiecesFromFile *int) (*storage.Order, bool, error) {
	order, err := tx.FindOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, false, err
	}
	if order != nil {
		return order, false, nil
	}

	order = &storage.Order{
		OrderNumber:    orderNumber,
		MaterialNumber: 0,
		StartDate:      monthStart,
	}
	if numPiecesFromFile != nil {
		order.NumPieces = *numPiecesFromFile
	}

	id, err := tx.CreateOrder(ctx, order)
	if errors.Is(err, storage.ErrDuplicate) {
		existing, findErr := tx.FindOrderByNumber(ctx, orderNumber)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	if err != nil {
		return nil, false, err
	}
	order.ID = id
	return order, true, nil
}

func (im *Importer) ensureOperation(ctx context.Context, tx storage.ImportTx, orderID int64, operationCode string) (*storage.Operation, bool, error) {
	operation, err := tx.FindOperation(ctx, orderID, operationCode)
	if err != nil {
		return nil, false, err
	}
	if operation != nil {
		return operation, false, nil
	}

	operation = &storage.Operation{
		OrderID:       orderID,
		OperationCode: operationCode,
	}

	id, err := tx.CreateOperation(ctx, operation)
	if errors.Is(err, storage.ErrDuplicate) {
		existing, findErr := tx.FindOperation(ctx, orderID, operationCode)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	if err != nil {
		return nil, false, err
	}
	operation.ID = id
	return operation, true, nil
}
