package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rubenpeq/BITZER-APP/internal/storage"
)

type MockImportStorage struct {
	mock.Mock
}

func (m *MockImportStorage) FindOrderByNumber(ctx context.Context, orderNumber int) (*storage.Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	order, ok := args.Get(0).(*storage.Order)
	if !ok {
		return nil, fmt.Errorf("expected *storage.Order, got %T", args.Get(0))
	}
	return order, args.Error(1)
}

func (m *MockImportStorage) FindOperation(ctx context.Context, orderID int64, operationCode string) (*storage.Operation, error) {
	args := m.Called(ctx, orderID, operationCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	operation, ok := args.Get(0).(*storage.Operation)
	if !ok {
		return nil, fmt.Errorf("expected *storage.Operation, got %T", args.Get(0))
	}
	return operation, args.Error(1)
}

func (m *MockImportStorage) Begin(ctx context.Context) (storage.ImportTx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(storage.ImportTx), args.Error(1)
}

func (m *MockImportStorage) SetOrderNumPieces(ctx context.Context, totals map[int]int) error {
	args := m.Called(ctx, totals)
	return args.Error(0)
}

type MockImportTx struct {
	mock.Mock
}

func (m *MockImportTx) FindOrderByNumber(ctx context.Context, orderNumber int) (*storage.Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Order), args.Error(1)
}

func (m *MockImportTx) CreateOrder(ctx context.Context, order *storage.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockImportTx) FindOperation(ctx context.Context, orderID int64, operationCode string) (*storage.Operation, error) {
	args := m.Called(ctx, orderID, operationCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Operation), args.Error(1)
}

func (m *MockImportTx) CreateOperation(ctx context.Context, operation *storage.Operation) (int64, error) {
	args := m.Called(ctx, operation)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockImportTx) InsertTask(ctx context.Context, task *storage.Task) (int64, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockImportTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockImportTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// fakeReader serves grids by file base name, standing in for the workbook
// reader.
type fakeReader struct {
	grids map[string][][]any
	errs  map[string]error
}

func (f *fakeReader) Grid(path string) ([][]any, error) {
	name := filepath.Base(path)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	grid, ok := f.grids[name]
	if !ok {
		return nil, fmt.Errorf("no grid for %s", name)
	}
	return grid, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeArchive lays the given relative paths out under a temp dir as empty
// files.
func writeArchive(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		full := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("stub"), 0o644))
	}
	return dir
}

// scenarioGrid is one processing row plus the U2 order total in pieces.
func scenarioGrid(numPieces float64) [][]any {
	grid := [][]any{
		row(830.0, 1415.0, 2.0, 1.0, 120.0),
		make([]any, numPiecesCol+1),
	}
	grid[1][numPiecesCol] = numPieces
	return grid
}

func TestRun_WriteMode_CreatesOrderOperationTask(t *testing.T) {
	dir := writeArchive(t, filepath.Join("03-2021", "1042_AB1.xlsm"))
	reader := &fakeReader{grids: map[string][][]any{"1042_AB1.xlsm": scenarioGrid(500)}}

	tx := new(MockImportTx)
	tx.On("FindOrderByNumber", mock.Anything, 1042).Return(nil, nil).Once()
	tx.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o *storage.Order) bool {
		return o.OrderNumber == 1042 &&
			o.MaterialNumber == 0 &&
			o.NumPieces == 500 &&
			o.StartDate.Equal(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC))
	})).Return(int64(1), nil).Once()
	tx.On("FindOperation", mock.Anything, int64(1), "AB1").Return(nil, nil).Once()
	tx.On("CreateOperation", mock.Anything, mock.MatchedBy(func(o *storage.Operation) bool {
		return o.OrderID == 1 && o.OperationCode == "AB1" && o.MachineID == nil
	})).Return(int64(10), nil).Once()
	tx.On("InsertTask", mock.Anything, mock.MatchedBy(func(task *storage.Task) bool {
		return task.OperationID == 10 &&
			task.ProcessType == storage.ProcessTypeProcessing &&
			task.StartAt != nil && task.StartAt.Equal(time.Date(2021, 3, 1, 8, 30, 0, 0, time.UTC)) &&
			task.EndAt != nil && task.EndAt.Equal(time.Date(2021, 3, 1, 14, 15, 0, 0, time.UTC)) &&
			task.GoodPieces != nil && *task.GoodPieces == 120 &&
			task.BadPieces != nil && *task.BadPieces == 0
	})).Return(int64(100), nil).Once()
	tx.On("Commit").Return(nil).Once()
	tx.On("Rollback").Return(errors.New("already committed")).Maybe()

	store := new(MockImportStorage)
	store.On("Begin", mock.Anything).Return(tx, nil).Once()

	imp := New(discardLogger(), store, reader, Options{})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.OrdersCreated)
	assert.Equal(t, 0, stats.OrdersExisting)
	assert.Equal(t, 1, stats.OperationsCreated)
	assert.Equal(t, 0, stats.OperationsExisting)
	assert.Equal(t, 1, stats.TasksInserted)
	assert.Equal(t, 0, stats.FilesFailed)

	store.AssertExpectations(t)
	tx.AssertExpectations(t)
}

// Re-running the same file keeps orders and operations idempotent but
// re-inserts the tasks.
func TestRun_WriteMode_RerunReportsExistingAndDuplicatesTasks(t *testing.T) {
	dir := writeArchive(t, filepath.Join("03-2021", "1042_AB1.xlsm"))
	reader := &fakeReader{grids: map[string][][]any{"1042_AB1.xlsm": scenarioGrid(500)}}

	existingOrder := &storage.Order{ID: 1, OrderNumber: 1042, NumPieces: 500,
		StartDate: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)}
	existingOperation := &storage.Operation{ID: 10, OrderID: 1, OperationCode: "AB1"}

	tx := new(MockImportTx)
	tx.On("FindOrderByNumber", mock.Anything, 1042).Return(existingOrder, nil).Once()
	tx.On("FindOperation", mock.Anything, int64(1), "AB1").Return(existingOperation, nil).Once()
	tx.On("InsertTask", mock.Anything, mock.Anything).Return(int64(101), nil).Once()
	tx.On("Commit").Return(nil).Once()
	tx.On("Rollback").Return(errors.New("already committed")).Maybe()

	store := new(MockImportStorage)
	store.On("Begin", mock.Anything).Return(tx, nil).Once()

	imp := New(discardLogger(), store, reader, Options{})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.OrdersCreated)
	assert.Equal(t, 1, stats.OrdersExisting)
	assert.Equal(t, 0, stats.OperationsCreated)
	assert.Equal(t, 1, stats.OperationsExisting)
	assert.Equal(t, 1, stats.TasksInserted)

	tx.AssertExpectations(t)
	tx.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	tx.AssertNotCalled(t, "CreateOperation", mock.Anything, mock.Anything)
}

// A duplicate-key failure on create means a concurrent run inserted the order
// first; it must be re-fetched, not treated as created.
func TestRun_WriteMode_DuplicateKeyRefetches(t *testing.T) {
	dir := writeArchive(t, filepath.Join("03-2021", "1042_AB1.xlsm"))
	reader := &fakeReader{grids: map[string][][]any{"1042_AB1.xlsm": scenarioGrid(500)}}

	existingOrder := &storage.Order{ID: 7, OrderNumber: 1042,
		StartDate: time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)}
	existingOperation := &storage.Operation{ID: 70, OrderID: 7, OperationCode: "AB1"}

	tx := new(MockImportTx)
	tx.On("FindOrderByNumber", mock.Anything, 1042).Return(nil, nil).Once()
	tx.On("CreateOrder", mock.Anything, mock.Anything).
		Return(int64(0), fmt.Errorf("create: %w", storage.ErrDuplicate)).Once()
	tx.On("FindOrderByNumber", mock.Anything, 1042).Return(existingOrder, nil).Once()
	tx.On("FindOperation", mock.Anything, int64(7), "AB1").Return(existingOperation, nil).Once()
	tx.On("InsertTask", mock.Anything, mock.Anything).Return(int64(100), nil).Once()
	tx.On("Commit").Return(nil).Once()
	tx.On("Rollback").Return(errors.New("already committed")).Maybe()

	store := new(MockImportStorage)
	store.On("Begin", mock.Anything).Return(tx, nil).Once()

	imp := New(discardLogger(), store, reader, Options{})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.OrdersCreated)
	assert.Equal(t, 1, stats.OrdersExisting)
	tx.AssertExpectations(t)
}

func TestRun_SkipsUnmatchedFileNames(t *testing.T) {
	dir := writeArchive(t,
		filepath.Join("03-2021", "report_final.xlsm"),
		filepath.Join("03-2021", "1042_AB1.xlsm"),
	)
	reader := &fakeReader{grids: map[string][][]any{"1042_AB1.xlsm": scenarioGrid(500)}}

	tx := new(MockImportTx)
	tx.On("FindOrderByNumber", mock.Anything, 1042).Return(&storage.Order{ID: 1, OrderNumber: 1042}, nil).Once()
	tx.On("FindOperation", mock.Anything, int64(1), "AB1").Return(&storage.Operation{ID: 10, OrderID: 1, OperationCode: "AB1"}, nil).Once()
	tx.On("InsertTask", mock.Anything, mock.Anything).Return(int64(100), nil).Once()
	tx.On("Commit").Return(nil).Once()
	tx.On("Rollback").Return(errors.New("already committed")).Maybe()

	store := new(MockImportStorage)
	store.On("Begin", mock.Anything).Return(tx, nil).Once()

	imp := New(discardLogger(), store, reader, Options{})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 1, stats.TasksInserted)
	store.AssertNumberOfCalls(t, "Begin", 1)
}

// A failed file rolls back and the run continues with the next file.
func TestRun_WriteMode_FileFailureIsIsolated(t *testing.T) {
	dir := writeArchive(t,
		filepath.Join("03-2021", "1042_AB1.xlsm"),
		filepath.Join("03-2021", "2055_CD2.xlsm"),
	)
	reader := &fakeReader{grids: map[string][][]any{
		"1042_AB1.xlsm": scenarioGrid(500),
		"2055_CD2.xlsm": {row("7:00", "15:00", nil, nil, 30.0)},
	}}

	failingTx := new(MockImportTx)
	failingTx.On("FindOrderByNumber", mock.Anything, 1042).Return(nil, errors.New("connection lost")).Once()
	failingTx.On("Rollback").Return(nil).Once()

	okTx := new(MockImportTx)
	okTx.On("FindOrderByNumber", mock.Anything, 2055).Return(nil, nil).Once()
	okTx.On("CreateOrder", mock.Anything, mock.Anything).Return(int64(2), nil).Once()
	okTx.On("FindOperation", mock.Anything, int64(2), "CD2").Return(nil, nil).Once()
	okTx.On("CreateOperation", mock.Anything, mock.Anything).Return(int64(20), nil).Once()
	okTx.On("InsertTask", mock.Anything, mock.Anything).Return(int64(200), nil).Once()
	okTx.On("Commit").Return(nil).Once()
	okTx.On("Rollback").Return(errors.New("already committed")).Maybe()

	store := new(MockImportStorage)
	store.On("Begin", mock.Anything).Return(failingTx, nil).Once()
	store.On("Begin", mock.Anything).Return(okTx, nil).Once()

	imp := New(discardLogger(), store, reader, Options{})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.OrdersCreated)
	assert.Equal(t, 1, stats.TasksInserted)

	failingTx.AssertExpectations(t)
	okTx.AssertExpectations(t)
}

func TestRun_PreviewMode_TouchesNoStorage(t *testing.T) {
	dir := writeArchive(t, filepath.Join("03-2021", "1042_AB1.xlsm"))
	reader := &fakeReader{grids: map[string][][]any{"1042_AB1.xlsm": scenarioGrid(500)}}

	imp := New(discardLogger(), nil, reader, Options{Preview: true, UpdateOrderNumPieces: true})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TasksInserted)
	assert.Equal(t, 0, stats.OrdersCreated)
	assert.Equal(t, 0, stats.OrdersExisting)
}

func TestRun_SimulateMode_LooksUpWithoutWriting(t *testing.T) {
	dir := writeArchive(t,
		filepath.Join("03-2021", "1042_AB1.xlsm"),
		filepath.Join("03-2021", "2055_CD2.xlsm"),
	)
	reader := &fakeReader{grids: map[string][][]any{
		"1042_AB1.xlsm": scenarioGrid(500),
		"2055_CD2.xlsm": {row("7:00", "15:00", nil, nil, 30.0)},
	}}

	store := new(MockImportStorage)
	store.On("FindOrderByNumber", mock.Anything, 1042).
		Return(&storage.Order{ID: 1, OrderNumber: 1042}, nil).Once()
	store.On("FindOperation", mock.Anything, int64(1), "AB1").Return(nil, nil).Once()
	store.On("FindOrderByNumber", mock.Anything, 2055).Return(nil, nil).Once()

	imp := New(discardLogger(), store, reader, Options{Simulate: true})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.OrdersExisting)
	assert.Equal(t, 1, stats.OrdersCreated)
	assert.Equal(t, 1, stats.OperationsCreated)
	assert.Equal(t, 0, stats.OperationsExisting)
	assert.Equal(t, 2, stats.TasksInserted)

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "Begin", mock.Anything)
}

// The aggregation pass overwrites num_pieces with the sum of imported good
// pieces, superseding the file-declared total.
func TestRun_WriteMode_AggregatesGoodPieces(t *testing.T) {
	dir := writeArchive(t, filepath.Join("03-2021", "1042_AB1.xlsm"))
	grid := [][]any{
		row(830.0, 1415.0, nil, nil, 120.0),
		row(1500.0, 2200.0, nil, nil, 30.0),
		make([]any, numPiecesCol+1),
	}
	grid[2][numPiecesCol] = 500.0
	reader := &fakeReader{grids: map[string][][]any{"1042_AB1.xlsm": grid}}

	tx := new(MockImportTx)
	tx.On("FindOrderByNumber", mock.Anything, 1042).Return(nil, nil).Once()
	tx.On("CreateOrder", mock.Anything, mock.Anything).Return(int64(1), nil).Once()
	tx.On("FindOperation", mock.Anything, int64(1), "AB1").Return(nil, nil).Once()
	tx.On("CreateOperation", mock.Anything, mock.Anything).Return(int64(10), nil).Once()
	tx.On("InsertTask", mock.Anything, mock.Anything).Return(int64(100), nil).Twice()
	tx.On("Commit").Return(nil).Once()
	tx.On("Rollback").Return(errors.New("already committed")).Maybe()

	store := new(MockImportStorage)
	store.On("Begin", mock.Anything).Return(tx, nil).Once()
	store.On("SetOrderNumPieces", mock.Anything, map[int]int{1042: 150}).Return(nil).Once()

	imp := New(discardLogger(), store, reader, Options{UpdateOrderNumPieces: true})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TasksInserted)
	store.AssertExpectations(t)
}

func TestRun_MissingBaseDirIsFatal(t *testing.T) {
	imp := New(discardLogger(), nil, &fakeReader{}, Options{Preview: true})
	_, err := imp.Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestRun_UnreadableWorkbookIsIsolated(t *testing.T) {
	dir := writeArchive(t, filepath.Join("03-2021", "1042_AB1.xlsm"))
	reader := &fakeReader{errs: map[string]error{"1042_AB1.xlsm": errors.New("file locked")}}

	imp := New(discardLogger(), nil, reader, Options{Preview: true})
	stats, err := imp.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 0, stats.TasksInserted)
}
