package grid

import (
	"context"

	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

const selectionPhase = 40

// Selection tracks a set of selected row indices. It contributes no
// pipeline stage; selection follows the rows, not the visible order.
func Selection() plugin.Plugin {
	const name = "selection"
	return plugin.Plugin{
		Name:         name,
		Phase:        selectionPhase,
		Dependencies: []string{"rows"},
		Setup: func(st *store.Store, api *plugin.API) (store.Disposable, error) {
			if err := st.Extend("selection.keys", map[int]bool{}, name, selectionPhase); err != nil {
				return nil, err
			}

			err := st.Computed("selection.count", func() any {
				keys, _ := st.Get("selection.keys").(map[int]bool)
				return len(keys)
			}, name, selectionPhase)
			if err != nil {
				return nil, err
			}

			err = st.Action("selection.toggle", func(ctx context.Context, args ...any) (any, error) {
				idx, _ := argAt(args, 0).(int)
				keys, _ := st.Peek("selection.keys").(map[int]bool)
				next := make(map[int]bool, len(keys)+1)
				for k := range keys {
					next[k] = true
				}
				if next[idx] {
					delete(next, idx)
				} else {
					next[idx] = true
				}
				if err := st.Set("selection.keys", next); err != nil {
					return nil, err
				}
				api.FireEvent("selection:changed", next)
				return next[idx], nil
			}, name)
			if err != nil {
				return nil, err
			}

			err = st.Action("selection.clear", func(ctx context.Context, args ...any) (any, error) {
				if err := st.Set("selection.keys", map[int]bool{}); err != nil {
					return nil, err
				}
				api.FireEvent("selection:changed", map[int]bool{})
				return nil, nil
			}, name)
			if err != nil {
				return nil, err
			}

			return nil, api.Register(name, map[string]any{
				"toggle": func(idx int) bool {
					selected, _ := st.Exec("selection.toggle", idx)
					on, _ := selected.(bool)
					return on
				},
				"clear": func() {
					_, _ = st.Exec("selection.clear")
				},
				"count": func() int {
					count, _ := st.Peek("selection.count").(int)
					return count
				},
			})
		},
	}
}
