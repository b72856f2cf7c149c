package grid

import (
	"context"
	"fmt"
	"sort"

	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

const sortPhase = 10

// Sort contributes an ordered index list at phase 10. An empty sort
// column withdraws the contribution, so the pipeline falls through to
// the base indices.
func Sort(reg *pipeline.Registry) plugin.Plugin {
	const name = "sort"
	return plugin.Plugin{
		Name:         name,
		Phase:        sortPhase,
		Dependencies: []string{"rows"},
		Setup: func(st *store.Store, api *plugin.API) (store.Disposable, error) {
			if err := reg.RegisterPhase(name, sortPhase, SortStageKey); err != nil {
				return nil, err
			}
			if err := st.Extend("sort.column", "", name, sortPhase); err != nil {
				return nil, err
			}
			if err := st.Extend("sort.desc", false, name, sortPhase); err != nil {
				return nil, err
			}

			err := st.Computed(SortStageKey, func() any {
				column, _ := st.Get("sort.column").(string)
				if column == "" {
					return nil
				}
				desc, _ := st.Get("sort.desc").(bool)
				rows := rowsAt(st)
				base := upstream(st)

				indices := make([]int, len(base))
				copy(indices, base)
				sort.SliceStable(indices, func(i, j int) bool {
					a := cellString(rows, indices[i], column)
					b := cellString(rows, indices[j], column)
					if desc {
						return a > b
					}
					return a < b
				})
				return indices
			}, name, sortPhase)
			if err != nil {
				return nil, err
			}

			err = st.Action("sort.toggle", func(ctx context.Context, args ...any) (any, error) {
				column, _ := argAt(args, 0).(string)
				st.Batch(func() {
					current, _ := st.Peek("sort.column").(string)
					if current == column {
						desc, _ := st.Peek("sort.desc").(bool)
						_ = st.Set("sort.desc", !desc)
						return
					}
					_ = st.Set("sort.column", column)
					_ = st.Set("sort.desc", false)
				})
				api.FireEvent("sort:changed", column)
				return nil, nil
			}, name, store.Invalidates(SortStageKey))
			if err != nil {
				return nil, err
			}

			if err := api.Register(name, map[string]any{
				"toggle": func(column string) {
					_, _ = st.Exec("sort.toggle", column)
				},
				"column": func() string {
					column, _ := st.Peek("sort.column").(string)
					return column
				},
			}); err != nil {
				return nil, err
			}

			// Flat-name seam for callers written against the old grid.
			return nil, api.OnLegacy("setSort", func(args ...any) (any, error) {
				return st.Exec("sort.toggle", args...)
			})
		},
	}
}

// cellString renders one cell for comparison. Out-of-range indices sort
// first.
func cellString(rows []Row, idx int, column string) string {
	if idx < 0 || idx >= len(rows) {
		return ""
	}
	v, ok := rows[idx][column]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}
