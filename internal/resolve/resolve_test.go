package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

func testSnapshot(ids ...string) schedule.Snapshot {
	start := time.Date(2025, 11, 3, 6, 0, 0, 0, time.UTC)
	var orders []schedule.Order
	for i, id := range ids {
		s := start.Add(time.Duration(i) * time.Hour)
		orders = append(orders, schedule.Order{ID: id, Machine: "MIX_1", Start: s, End: s.Add(time.Hour)})
	}
	return schedule.Snapshot{
		Orders: orders,
		Machines: []schedule.Machine{
			{ID: "MIX_1", Name: "Mixing/Processing"},
			{ID: "TRANS_1", Name: "Transfer/Holding"},
			{ID: "FILL_1", Name: "Filling/Capping"},
			{ID: "FIN_1", Name: "Finishing/QC"},
		},
	}
}

func requireKind(t *testing.T, err error, kind outcome.Kind) *outcome.Failure {
	t.Helper()
	f, ok := outcome.AsFailure(err)
	require.True(t, ok, "expected a Failure, got %v", err)
	assert.Equal(t, kind, f.Kind)
	return f
}

func TestOrderResolution(t *testing.T) {
	rc := NewContext(testSnapshot("ORD-001", "ORD-005", "ORD-021", "ORD-067", "ORD-105"))

	tests := []struct {
		ref  string
		want string
	}{
		{"ORD-001", "ORD-001"},
		{"ord-001", "ORD-001"},
		{"order 1", "ORD-001"},
		{"1", "ORD-001"},
		{"001", "ORD-001"},
		{"order five", "ORD-005"},
		{"order #5", "ORD-005"},
		{"#5", "ORD-005"},
		{"order number 5", "ORD-005"},
		{"order no. 5", "ORD-005"},
		{"orders 5", "ORD-005"},
		{"twenty-one", "ORD-021"},
		{"order twenty one", "ORD-021"},
		{"order sixty seven", "ORD-067"},
		{"one hundred and five", "ORD-105"},
		{"order 67.", "ORD-067"},
		{"order fifth", "ORD-005"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := rc.Order(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEveryCanonicalIDResolvesToItself(t *testing.T) {
	snap := testSnapshot("ORD-001", "ORD-002", "LOT-A", "PO-17")
	rc := NewContext(snap)
	for _, o := range snap.Orders {
		got, err := rc.Order(o.ID)
		require.NoError(t, err, o.ID)
		assert.Equal(t, o.ID, got)
	}
}

func TestOrderFailures(t *testing.T) {
	rc := NewContext(testSnapshot("ORD-001", "ORD-002"))

	f := requireKind(t, func() error { _, err := rc.Order("order 99"); return err }(), outcome.KindUnknownReference)
	assert.Equal(t, "order 99", f.Token)
	assert.Equal(t, "ORD-099", f.OrderID)
	assert.Contains(t, f.Message, "ORD-099")

	for _, ref := range []string{"", "order", "order banana", "order 0", "order 1000", "order one thousand"} {
		_, err := rc.Order(ref)
		requireKind(t, err, outcome.KindUnknownReference)
	}
}

func TestOrderAmbiguousAcrossFormats(t *testing.T) {
	rc := NewContext(testSnapshot("ORD-001", "PO-1"))

	_, err := rc.Order("order 1")
	f := requireKind(t, err, outcome.KindAmbiguousReference)
	assert.Contains(t, f.Message, "ORD-001")
	assert.Contains(t, f.Message, "PO-1")

	got, err := rc.Order("PO-1")
	require.NoError(t, err)
	assert.Equal(t, "PO-1", got)
}

func TestCanonicalLearnsStoredFormat(t *testing.T) {
	assert.Equal(t, "ORD-007", NewContext(testSnapshot()).Canonical(7))
	assert.Equal(t, "WO0007", NewContext(testSnapshot("WO0001", "WO0002")).Canonical(7))

	rc := NewContext(testSnapshot("WO0001", "WO0012"))
	got, err := rc.Order("order twelve")
	require.NoError(t, err)
	assert.Equal(t, "WO0012", got)
}

func TestMachineResolution(t *testing.T) {
	rc := NewContext(testSnapshot())

	tests := []struct {
		ref  string
		want string
	}{
		{"FILL_1", "FILL_1"},
		{"fill_1", "FILL_1"},
		{"fill 1", "FILL_1"},
		{"fill one", "FILL_1"},
		{"machine fill-1", "FILL_1"},
		{"filling", "FILL_1"},
		{"Filling/Capping", "FILL_1"},
		{"the transfer line", "TRANS_1"},
		{"qc", "FIN_1"},
		{"mix", "MIX_1"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := rc.Machine(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMachineFailures(t *testing.T) {
	snap := testSnapshot()
	snap.Machines = append(snap.Machines, schedule.Machine{ID: "MIX_2", Name: "Mixing/Processing"})
	rc := NewContext(snap)

	_, err := rc.Machine("mix")
	requireKind(t, err, outcome.KindAmbiguousReference)

	_, err = rc.Machine("oven")
	f := requireKind(t, err, outcome.KindUnknownReference)
	assert.Contains(t, f.Message, "MIX_1")

	_, err = rc.Machine("  ")
	requireKind(t, err, outcome.KindUnknownReference)
}

func TestIDListsAreCopies(t *testing.T) {
	rc := NewContext(testSnapshot("ORD-002", "ORD-001"))
	ids := rc.OrderIDs()
	assert.Equal(t, []string{"ORD-001", "ORD-002"}, ids)
	ids[0] = "X"
	assert.Equal(t, "ORD-001", rc.OrderIDs()[0])
	assert.Equal(t, "MIX_1", rc.MachineIDs()[0])
}
