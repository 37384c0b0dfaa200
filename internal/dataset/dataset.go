// Package dataset loads the machine roster and orders from CSV files and,
// when the orders carry no placement, generates a starting schedule.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

// ErrMissingColumn is wrapped when a required CSV column is absent.
var ErrMissingColumn = errors.New("missing column")

// DefaultBaseStart is when generated schedules begin.
var DefaultBaseStart = time.Date(2025, 11, 3, 6, 0, 0, 0, time.UTC)

// BaseRateKg is the quantity processed per rate-hour.
const BaseRateKg = 300.0

// Rates are hours per BaseRateKg of product, the sum of the mixing,
// transfer, filling and finishing fractions of each bulk SKU. Unknown SKUs
// use the shampoo rate.
var Rates = map[string]float64{
	"VRAC_SHAMPOO_BASE":     0.400,
	"VRAC_CONDITIONER_BASE": 0.300,
	"VRAC_HAIR_MASK":        0.410,
}

const defaultSKU = "VRAC_SHAMPOO_BASE"

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Options controls loading.
type Options struct {
	// BaseStart is where generation starts packing. Zero means DefaultBaseStart.
	BaseStart time.Time
	// Location interprets timestamps without a zone. Nil means UTC.
	Location *time.Location
	Logger   *slog.Logger
}

// Row is one orders.csv record before it is placed.
type Row struct {
	ID      string
	Product string
	QtyKg   float64
	Due     time.Time
	Machine string
	Start   time.Time
	End     time.Time
	Status  schedule.Status
}

// Placed reports whether the row carries its own machine and interval.
func (r Row) Placed() bool {
	return r.Machine != "" && !r.Start.IsZero() && !r.End.IsZero()
}

// Load reads both files concurrently and returns a schedule. Orders with
// no placement are packed onto the roster with Generate.
func Load(ctx context.Context, ordersPath, linesPath string, opts Options) ([]schedule.Order, []schedule.Machine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var (
		rows     []Row
		machines []schedule.Machine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = readFile(gctx, ordersPath, func(r io.Reader) ([]Row, error) { return ReadOrders(r, opts.Location) })
		return err
	})
	g.Go(func() error {
		var err error
		machines, err = readFile(gctx, linesPath, ReadMachines)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	orders, err := Place(rows, machines, opts.BaseStart)
	if err != nil {
		return nil, nil, err
	}
	opts.Logger.Debug("dataset loaded", "orders", len(orders), "machines", len(machines))
	return orders, machines, nil
}

func readFile[T any](ctx context.Context, path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	out, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// header maps lowercased column names to indexes. The first of several
// accepted names wins.
type header map[string]int

func readHeader(r *csv.Reader) (header, error) {
	names, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("file is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h := make(header, len(names))
	for i, name := range names {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h, nil
}

func (h header) index(names ...string) int {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i
		}
	}
	return -1
}

func (h header) require(names ...string) (int, error) {
	if i := h.index(names...); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w %q", ErrMissingColumn, names[0])
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// ReadMachines reads lines.csv: line_id, name and an optional products
// column listing allowed SKUs separated by ';' or '|'.
func ReadMachines(r io.Reader) ([]schedule.Machine, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol, err := h.require("line_id", "machine_id", "id", "machine")
	if err != nil {
		return nil, err
	}
	nameCol := h.index("name", "line_name", "machine_name")
	productsCol := h.index("products", "skus", "allowed_products")

	var machines []schedule.Machine
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		id := field(record, idCol)
		if id == "" {
			continue
		}
		m := schedule.Machine{ID: id, Name: field(record, nameCol)}
		for _, p := range strings.FieldsFunc(field(record, productsCol), func(r rune) bool { return r == ';' || r == '|' }) {
			if p = strings.TrimSpace(p); p != "" {
				m.Products = append(m.Products, p)
			}
		}
		machines = append(machines, m)
	}
	if len(machines) == 0 {
		return nil, errors.New("no machines defined")
	}
	return machines, nil
}

// ReadOrders reads orders.csv. order_id is required; sku_id (or product),
// qty_kg and due_date feed generation; machine, start and end, when all
// present, place the order directly.
func ReadOrders(r io.Reader, loc *time.Location) ([]Row, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol, err := h.require("order_id", "id")
	if err != nil {
		return nil, err
	}
	var (
		productCol = h.index("sku_id", "product", "sku", "wheel_type")
		qtyCol     = h.index("qty_kg", "qty", "quantity")
		dueCol     = h.index("due_date", "due")
		machineCol = h.index("machine", "line_id", "machine_id")
		startCol   = h.index("start", "start_time")
		endCol     = h.index("end", "end_time")
		statusCol  = h.index("status")
	)

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line := lineOf(cr)

		row := Row{
			ID:      field(record, idCol),
			Product: field(record, productCol),
			Machine: field(record, machineCol),
			Status:  schedule.Status(field(record, statusCol)),
		}
		if row.ID == "" {
			continue
		}
		if s := field(record, qtyCol); s != "" {
			qty, err := strconv.ParseFloat(s, 64)
			if err != nil || qty < 0 || math.IsInf(qty, 0) || math.IsNaN(qty) {
				return nil, fmt.Errorf("line %d: invalid qty_kg %q", line, s)
			}
			row.QtyKg = qty
		}
		for _, ts := range []struct {
			col  int
			name string
			dst  *time.Time
		}{{dueCol, "due_date", &row.Due}, {startCol, "start", &row.Start}, {endCol, "end", &row.End}} {
			s := field(record, ts.col)
			if s == "" {
				continue
			}
			t, err := ParseTime(s, loc)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, ts.name, err)
			}
			*ts.dst = t
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func lineOf(cr *csv.Reader) int {
	line, _ := cr.FieldPos(0)
	return line
}

// ParseTime accepts RFC 3339 and the common spreadsheet layouts. Times
// without a zone are read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// Duration is the processing time of qtyKg of sku, rounded to the minute
// and at least one minute.
func Duration(sku string, qtyKg float64) time.Duration {
	rate, ok := Rates[strings.ToUpper(sku)]
	if !ok {
		rate = Rates[defaultSKU]
	}
	hours := qtyKg / BaseRateKg * rate
	d := time.Duration(hours * float64(time.Hour)).Round(time.Minute)
	return max(d, time.Minute)
}

// Place turns rows into orders. Rows that carry a placement keep it; the
// rest are packed with Generate after the placed ones.
func Place(rows []Row, machines []schedule.Machine, baseStart time.Time) ([]schedule.Order, error) {
	var placed []schedule.Order
	var pending []Row
	for _, r := range rows {
		if r.Placed() {
			placed = append(placed, schedule.Order{
				ID: r.ID, Product: r.Product, Machine: r.Machine,
				Start: r.Start, End: r.End, Status: r.Status, QtyKg: r.QtyKg, Due: r.Due,
			})
			continue
		}
		pending = append(pending, r)
	}
	if len(pending) == 0 {
		return placed, nil
	}

	generated, err := Generate(pending, machines, baseStart, placed)
	if err != nil {
		return nil, err
	}
	return append(placed, generated...), nil
}

// Generate packs rows back to back, in (due date, order ID) order, onto the
// compatible machine that frees up first. Each machine starts at baseStart
// or after the last of the already placed orders on it.
func Generate(rows []Row, machines []schedule.Machine, baseStart time.Time, placed []schedule.Order) ([]schedule.Order, error) {
	if baseStart.IsZero() {
		baseStart = DefaultBaseStart
	}
	if len(machines) == 0 {
		return nil, errors.New("no machines to schedule on")
	}

	free := make(map[string]time.Time, len(machines))
	for _, m := range machines {
		free[m.ID] = baseStart
	}
	for _, o := range placed {
		if o.End.After(free[o.Machine]) {
			free[o.Machine] = o.End
		}
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b Row) int {
		if c := compareDue(a.Due, b.Due); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	orders := make([]schedule.Order, 0, len(sorted))
	for _, r := range sorted {
		product := r.Product
		if product == "" {
			product = defaultSKU
		}
		var best *schedule.Machine
		for i := range machines {
			m := &machines[i]
			if !m.Accepts(product) {
				continue
			}
			if best == nil || free[m.ID].Before(free[best.ID]) {
				best = m
			}
		}
		if best == nil {
			return nil, fmt.Errorf("order %s: no machine accepts product %s", r.ID, product)
		}

		start := free[best.ID]
		end := start.Add(Duration(product, r.QtyKg))
		free[best.ID] = end
		status := r.Status
		if status == "" {
			status = schedule.StatusScheduled
		}
		orders = append(orders, schedule.Order{
			ID: r.ID, Product: product, Machine: best.ID,
			Start: start, End: end, Status: status, QtyKg: r.QtyKg, Due: r.Due,
		})
	}
	return orders, nil
}

// Orders without a due date sort last.
func compareDue(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	}
	return a.Compare(b)
}

// WriteOrders writes a snapshot's orders as CSV with their placement, in
// the layout ReadOrders accepts.
func WriteOrders(w io.Writer, orders []schedule.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"order_id", "sku_id", "qty_kg", "due_date", "machine", "start", "end", "status"}); err != nil {
		return err
	}
	for _, o := range orders {
		due := ""
		if !o.Due.IsZero() {
			due = o.Due.Format(time.RFC3339)
		}
		qty := ""
		if o.QtyKg != 0 {
			qty = strconv.FormatFloat(o.QtyKg, 'f', -1, 64)
		}
		if err := cw.Write([]string{
			o.ID, o.Product, qty, due, o.Machine,
			o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339), string(o.Status),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
