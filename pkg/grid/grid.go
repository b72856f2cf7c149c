// Package grid ships the reference plugins of the zengrid core: a rows
// source plus sort, filter, pagination, and selection stages. They are
// deliberately small (real deployments replace the comparators and
// predicates) but they exercise every store operation and show the
// intended plugin shape: own your keys, publish through the pipeline
// registry, expose public methods through the API.
package grid

import (
	"fmt"

	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

// Row is one grid row. Collections are addressed by integer index; the
// engine has no opinion on row shape beyond that.
type Row = map[string]any

// Stage output keys.
const (
	SortStageKey   = "pipeline.sort"
	FilterStageKey = "pipeline.filter"
	PageStageKey   = "pipeline.page"
)

// Install registers the terminal view computeds and the full reference
// plugin set, in dependency order, against one host.
func Install(host *plugin.Host, reg *pipeline.Registry, rows []Row) error {
	if err := reg.SetupCoreComputeds(host.Store()); err != nil {
		return err
	}
	for _, p := range []plugin.Plugin{
		Rows(rows),
		Sort(reg),
		Filter(reg),
		Page(reg),
		Selection(),
	} {
		if err := host.Use(p); err != nil {
			return fmt.Errorf("install %q: %w", p.Name, err)
		}
	}
	return nil
}

// baseIndices returns the identity index list for n rows.
func baseIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// upstream returns the first populated stage output among keys, falling
// back to the base index list. Stage computeds call it with the keys of
// the stages before them, so a missing or withdrawn stage is skipped
// transparently.
func upstream(st *store.Store, keys ...string) []int {
	for _, key := range keys {
		if indices, ok := st.Get(key).([]int); ok && indices != nil {
			return indices
		}
	}
	indices, _ := st.Get(pipeline.RowsIndicesKey).([]int)
	return indices
}

// rowsAt resolves the raw rows signal.
func rowsAt(st *store.Store) []Row {
	rows, _ := st.Get(pipeline.RowsRawKey).([]Row)
	return rows
}

// argAt returns the i-th action argument, or nil when the caller passed
// fewer. Handlers type-assert the result, so a missing or mistyped
// argument reads as the zero value rather than panicking.
func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}
