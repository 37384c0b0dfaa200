package dataset

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const linesCSV = `line_id,name,products
MIX_1,Mixing/Processing,
FILL_1,Filling/Capping,VRAC_SHAMPOO_BASE
`

func date(d, h, m int) time.Time {
	return time.Date(2025, 11, d, h, m, 0, 0, time.UTC)
}

func TestReadMachines(t *testing.T) {
	machines, err := ReadMachines(strings.NewReader("\ufeff" + linesCSV))
	require.NoError(t, err)
	require.Len(t, machines, 2)
	assert.Equal(t, schedule.Machine{ID: "MIX_1", Name: "Mixing/Processing"}, machines[0])
	assert.Equal(t, []string{"VRAC_SHAMPOO_BASE"}, machines[1].Products)

	_, err = ReadMachines(strings.NewReader("name\nMixer\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ReadMachines(strings.NewReader("line_id,name\n"))
	assert.Error(t, err)

	_, err = ReadMachines(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadOrders(t *testing.T) {
	input := `Order_ID, SKU_ID, qty_kg, due_date, machine, start, end
ORD-001,VRAC_HAIR_MASK,1200,2025-11-05,,,
ORD-002,VRAC_SHAMPOO_BASE,900,2025-11-04,MIX_1,2025-11-03 06:00,2025-11-03T07:12:00Z

,,,
`
	rows, err := ReadOrders(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "VRAC_HAIR_MASK", rows[0].Product)
	assert.Equal(t, 1200.0, rows[0].QtyKg)
	assert.Equal(t, date(5, 0, 0), rows[0].Due)
	assert.False(t, rows[0].Placed())

	assert.True(t, rows[1].Placed())
	assert.Equal(t, date(3, 6, 0), rows[1].Start)
	assert.Equal(t, date(3, 7, 12), rows[1].End)
}

func TestReadOrdersRejectsBadValues(t *testing.T) {
	for _, input := range []string{
		"sku_id\nVRAC\n",
		"order_id,qty_kg\nORD-001,lots\n",
		"order_id,qty_kg\nORD-001,-5\n",
		"order_id,due_date\nORD-001,next tuesday\n",
	} {
		_, err := ReadOrders(strings.NewReader(input), time.UTC)
		assert.Error(t, err, input)
	}
}

func TestParseTimeUsesLocation(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	got, err := ParseTime("2025-11-03 06:00", paris)
	require.NoError(t, err)
	assert.Equal(t, date(3, 5, 0), got.UTC())

	got, err = ParseTime("2025-11-03T06:00:00Z", paris)
	require.NoError(t, err)
	assert.Equal(t, date(3, 6, 0), got.UTC())
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 4*time.Hour, Duration("VRAC_SHAMPOO_BASE", 3000))
	assert.Equal(t, 98*time.Minute, Duration("VRAC_HAIR_MASK", 1200))
	assert.Equal(t, 18*time.Minute, Duration("vrac_conditioner_base", 300))
	assert.Equal(t, 24*time.Minute, Duration("SOMETHING_NEW", 300))
	assert.Equal(t, time.Minute, Duration("VRAC_SHAMPOO_BASE", 0))
}

func TestGenerate(t *testing.T) {
	machines, err := ReadMachines(strings.NewReader(linesCSV))
	require.NoError(t, err)

	rows := []Row{
		{ID: "A", Product: "VRAC_SHAMPOO_BASE", QtyKg: 3000, Due: date(4, 0, 0)},
		{ID: "C", Product: "VRAC_CONDITIONER_BASE", QtyKg: 300, Due: date(3, 0, 0)},
		{ID: "B", Product: "VRAC_HAIR_MASK", QtyKg: 1200, Due: date(3, 0, 0)},
		{ID: "D", Product: "VRAC_SHAMPOO_BASE", QtyKg: 300},
	}
	orders, err := Generate(rows, machines, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, orders, 4)

	byID := map[string]schedule.Order{}
	for _, o := range orders {
		byID[o.ID] = o
		assert.Equal(t, schedule.StatusScheduled, o.Status)
	}
	// B and C are due first; FILL_1 takes neither.
	assert.Equal(t, schedule.Slot{Machine: "MIX_1", Start: date(3, 6, 0), End: date(3, 7, 38)}, byID["B"].Slot())
	assert.Equal(t, schedule.Slot{Machine: "MIX_1", Start: date(3, 7, 38), End: date(3, 7, 56)}, byID["C"].Slot())
	assert.Equal(t, schedule.Slot{Machine: "FILL_1", Start: date(3, 6, 0), End: date(3, 10, 0)}, byID["A"].Slot())
	// No due date sorts last; MIX_1 frees up first.
	assert.Equal(t, schedule.Slot{Machine: "MIX_1", Start: date(3, 7, 56), End: date(3, 8, 20)}, byID["D"].Slot())

	_, err = schedule.New(orders, machines, testLogger())
	assert.NoError(t, err)
}

func TestGenerateNoCompatibleMachine(t *testing.T) {
	machines := []schedule.Machine{{ID: "FILL_1", Products: []string{"VRAC_SHAMPOO_BASE"}}}
	_, err := Generate([]Row{{ID: "X", Product: "VRAC_HAIR_MASK", QtyKg: 300}}, machines, date(3, 6, 0), nil)
	assert.ErrorContains(t, err, "no machine accepts")
}

func TestPlaceKeepsPlacedOrders(t *testing.T) {
	machines, err := ReadMachines(strings.NewReader(linesCSV))
	require.NoError(t, err)

	rows := []Row{
		{ID: "P", Product: "VRAC_HAIR_MASK", Machine: "MIX_1", Start: date(3, 6, 0), End: date(3, 9, 0)},
		{ID: "G", Product: "VRAC_HAIR_MASK", QtyKg: 300},
	}
	orders, err := Place(rows, machines, date(3, 6, 0))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, date(3, 9, 0), orders[1].Start, "generated order starts after the placed one")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	ordersPath := filepath.Join(dir, "orders.csv")
	linesPath := filepath.Join(dir, "lines.csv")
	require.NoError(t, os.WriteFile(ordersPath, []byte("order_id,sku_id,qty_kg,due_date\nORD-001,VRAC_SHAMPOO_BASE,600,2025-11-04\n"), 0600))
	require.NoError(t, os.WriteFile(linesPath, []byte(linesCSV), 0600))

	orders, machines, err := Load(context.Background(), ordersPath, linesPath, Options{Logger: testLogger()})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Len(t, machines, 2)
	assert.Equal(t, DefaultBaseStart, orders[0].Start)

	_, _, err = Load(context.Background(), filepath.Join(dir, "missing.csv"), linesPath, Options{})
	assert.ErrorContains(t, err, "missing.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Load(ctx, ordersPath, linesPath, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBundledDataLoads(t *testing.T) {
	orders, machines, err := Load(context.Background(),
		filepath.Join("..", "..", "data", "orders.csv"),
		filepath.Join("..", "..", "data", "lines.csv"),
		Options{Logger: testLogger()})
	require.NoError(t, err)
	assert.Len(t, machines, 4)
	assert.NotEmpty(t, orders)

	_, err = schedule.New(orders, machines, testLogger())
	assert.NoError(t, err)
}

func TestWriteOrdersReadsBack(t *testing.T) {
	orders := []schedule.Order{
		{ID: "ORD-001", Product: "VRAC_SHAMPOO_BASE", Machine: "MIX_1", Start: date(3, 6, 0), End: date(3, 8, 0),
			Status: schedule.StatusScheduled, QtyKg: 1500, Due: date(5, 0, 0)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, orders))

	rows, err := ReadOrders(&buf, nil)
	require.NoError(t, err)
	placed, err := Place(rows, []schedule.Machine{{ID: "MIX_1"}}, time.Time{})
	require.NoError(t, err)
	require.Len(t, placed, 1)
	assert.True(t, placed[0].Slot().Equal(orders[0].Slot()))
	assert.Equal(t, orders[0].QtyKg, placed[0].QtyKg)
	assert.True(t, placed[0].Due.Equal(orders[0].Due))
}
