package grid

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

func testRows() []Row {
	return []Row{
		{"name": "delta", "n": 0},
		{"name": "alpha", "n": 1},
		{"name": "charlie", "n": 2},
		{"name": "echo", "n": 3},
		{"name": "bravo", "n": 4},
	}
}

func newTestGrid(t *testing.T) (*plugin.Host, *pipeline.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(store.WithLogger(logger))
	host := plugin.NewHost(st, plugin.WithLogger(logger))
	reg := pipeline.NewRegistry()
	if err := Install(host, reg, testRows()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	t.Cleanup(host.Destroy)
	return host, reg
}

func view(st *store.Store) []int {
	indices, _ := st.GetUnphased(pipeline.ViewIndicesKey).([]int)
	return indices
}

// settle drives pending effects and waits for cond, for flows that pass
// through the async filter stage.
func settle(t *testing.T, st *store.Store, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st.FlushEffects()
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInstallWiring(t *testing.T) {
	host, reg := newTestGrid(t)

	names := host.PluginNames()
	want := []string{"rows", "sort", "filter", "page", "selection"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected plugins %v, got %v", want, names)
	}

	phases := reg.Phases()
	if len(phases) != 3 {
		t.Fatalf("expected 3 pipeline stages, got %d", len(phases))
	}
	for i, want := range []string{"sort", "filter", "page"} {
		if phases[i].Name != want {
			t.Errorf("expected stage %d to be %s, got %s", i, want, phases[i].Name)
		}
	}

	api := host.API()
	for _, ns := range []string{"rows", "sort", "filter", "page", "selection"} {
		found := false
		for _, got := range api.Namespaces() {
			if got == ns {
				found = true
			}
		}
		if !found {
			t.Errorf("expected namespace %q to be registered", ns)
		}
	}
}

func TestInitialViewIsBaseOrder(t *testing.T) {
	host, _ := newTestGrid(t)

	if got := view(host.Store()); !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("expected identity order, got %v", got)
	}
	if count := host.Store().GetUnphased(pipeline.ViewCountKey); count != 5 {
		t.Errorf("expected count 5, got %v", count)
	}
}

func TestSortToggle(t *testing.T) {
	host, _ := newTestGrid(t)
	st := host.Store()

	if _, err := st.Exec("sort.toggle", "name"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := view(st); !reflect.DeepEqual(got, []int{1, 4, 2, 0, 3}) {
		t.Errorf("expected ascending name order, got %v", got)
	}

	// Same column flips direction.
	if _, err := st.Exec("sort.toggle", "name"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := view(st); !reflect.DeepEqual(got, []int{3, 0, 2, 4, 1}) {
		t.Errorf("expected descending name order, got %v", got)
	}
}

func TestFilterMatches(t *testing.T) {
	host, _ := newTestGrid(t)
	st := host.Store()

	if _, err := st.Exec("filter.set", "o"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	settle(t, st, "filter to apply", func() bool {
		return reflect.DeepEqual(view(st), []int{3, 4})
	})

	// Clearing the query withdraws the stage.
	if _, err := st.Exec("filter.set", ""); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	settle(t, st, "filter to withdraw", func() bool {
		return reflect.DeepEqual(view(st), []int{0, 1, 2, 3, 4})
	})
}

func TestFilterComposesWithSort(t *testing.T) {
	host, _ := newTestGrid(t)
	st := host.Store()

	if _, err := st.Exec("sort.toggle", "name"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if _, err := st.Exec("filter.set", "o"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	// echo and bravo survive, in sorted order: bravo first.
	settle(t, st, "filter over sort", func() bool {
		return reflect.DeepEqual(view(st), []int{4, 3})
	})
}

func TestPaging(t *testing.T) {
	host, _ := newTestGrid(t)
	st := host.Store()

	if _, err := st.Exec("page.resize", 2); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := view(st); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("expected first page, got %v", got)
	}

	if _, err := st.Exec("page.set", 1); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := view(st); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("expected second page, got %v", got)
	}

	// Last partial page.
	if _, err := st.Exec("page.set", 2); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := view(st); !reflect.DeepEqual(got, []int{4}) {
		t.Errorf("expected final partial page, got %v", got)
	}

	// Out of range pages are empty, zero size withdraws the stage.
	if _, err := st.Exec("page.set", 9); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := view(st); len(got) != 0 {
		t.Errorf("expected empty out-of-range page, got %v", got)
	}
	if _, err := st.Exec("page.resize", 0); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if got := view(st); !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("expected paging to withdraw, got %v", got)
	}
}

func TestSelection(t *testing.T) {
	host, _ := newTestGrid(t)
	st := host.Store()
	api := host.API()

	toggle, ok := api.Method("selection", "toggle").(func(int) bool)
	if !ok {
		t.Fatal("expected selection.toggle method")
	}
	count, ok := api.Method("selection", "count").(func() int)
	if !ok {
		t.Fatal("expected selection.count method")
	}

	if !toggle(2) {
		t.Error("expected toggle to select")
	}
	toggle(4)
	if count() != 2 {
		t.Errorf("expected 2 selected, got %d", count())
	}

	if toggle(2) {
		t.Error("expected second toggle to deselect")
	}
	if count() != 1 {
		t.Errorf("expected 1 selected, got %d", count())
	}

	if _, err := st.Exec("selection.clear"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if count() != 0 {
		t.Errorf("expected empty selection, got %d", count())
	}
}

func TestRowsSetReplacesData(t *testing.T) {
	host, _ := newTestGrid(t)
	st := host.Store()

	events := 0
	off := host.API().Events().On("rows:changed", func(any) { events++ })
	defer off()

	if _, err := st.Exec("rows.set", []Row{{"name": "solo"}}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	if got := view(st); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("expected single-row view, got %v", got)
	}
	if events != 1 {
		t.Errorf("expected one rows:changed event, got %d", events)
	}
}

func TestLegacySortSeam(t *testing.T) {
	host, _ := newTestGrid(t)

	if _, err := host.API().CallLegacy("setSort", "name"); err != nil {
		t.Fatalf("CallLegacy failed: %v", err)
	}
	if got := view(host.Store()); !reflect.DeepEqual(got, []int{1, 4, 2, 0, 3}) {
		t.Errorf("expected legacy call to sort, got %v", got)
	}
}

func TestDestroyClearsGridState(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(store.WithLogger(logger))
	host := plugin.NewHost(st, plugin.WithLogger(logger))
	if err := Install(host, pipeline.NewRegistry(), testRows()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	host.Destroy()

	if v := st.Peek(pipeline.RowsRawKey); v != nil {
		t.Errorf("expected rows to be gone, got %v", v)
	}
	if v := st.Peek(pipeline.ViewIndicesKey); v != nil {
		t.Errorf("expected view to be gone, got %v", v)
	}
}

func TestActionsTolerateMissingArgs(t *testing.T) {
	host, _ := newTestGrid(t)
	st := host.Store()

	for _, name := range []string{
		"sort.toggle", "filter.set", "page.set", "page.resize",
		"selection.toggle", "selection.clear", "rows.set",
	} {
		if _, err := st.Exec(name); err != nil {
			t.Errorf("Exec(%q) with no args failed: %v", name, err)
		}
	}

	if _, err := host.API().CallLegacy("setSort"); err != nil {
		t.Errorf("CallLegacy(\"setSort\") with no args failed: %v", err)
	}
}
