package grid

import (
	"context"

	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

// Rows is the base-data plugin: it injects the raw row collection and
// the identity index list every pipeline stage starts from.
func Rows(rows []Row) plugin.Plugin {
	const name = "rows"
	return plugin.Plugin{
		Name:  name,
		Phase: 0,
		Setup: func(st *store.Store, api *plugin.API) (store.Disposable, error) {
			if err := st.Extend(pipeline.RowsRawKey, rows, name, 0); err != nil {
				return nil, err
			}
			if err := st.Extend(pipeline.RowsIndicesKey, baseIndices(len(rows)), name, 0); err != nil {
				return nil, err
			}

			err := st.Action("rows.set", func(ctx context.Context, args ...any) (any, error) {
				next, _ := argAt(args, 0).([]Row)
				st.Batch(func() {
					_ = st.Set(pipeline.RowsRawKey, next)
					_ = st.Set(pipeline.RowsIndicesKey, baseIndices(len(next)))
				})
				api.FireEvent("rows:changed", len(next))
				return len(next), nil
			}, name, store.Invalidates(pipeline.RowsRawKey, pipeline.RowsIndicesKey))
			if err != nil {
				return nil, err
			}

			return nil, api.Register(name, map[string]any{
				"count": func() int {
					return len(rowsAt(st))
				},
			})
		},
	}
}
