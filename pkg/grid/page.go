package grid

import (
	"context"

	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

const pagePhase = 30

// Page windows the upstream index list at phase 30. A page size of zero
// disables paging and withdraws the stage.
func Page(reg *pipeline.Registry) plugin.Plugin {
	const name = "page"
	return plugin.Plugin{
		Name:         name,
		Phase:        pagePhase,
		Dependencies: []string{"rows"},
		Setup: func(st *store.Store, api *plugin.API) (store.Disposable, error) {
			if err := reg.RegisterPhase(name, pagePhase, PageStageKey); err != nil {
				return nil, err
			}
			if err := st.Extend("page.index", 0, name, pagePhase); err != nil {
				return nil, err
			}
			if err := st.Extend("page.size", 0, name, pagePhase); err != nil {
				return nil, err
			}

			err := st.Computed(PageStageKey, func() any {
				size, _ := st.Get("page.size").(int)
				if size <= 0 {
					return nil
				}
				index, _ := st.Get("page.index").(int)
				base := upstream(st, FilterStageKey, SortStageKey)

				start := index * size
				if start < 0 || start >= len(base) {
					return []int{}
				}
				end := start + size
				if end > len(base) {
					end = len(base)
				}
				window := make([]int, end-start)
				copy(window, base[start:end])
				return window
			}, name, pagePhase)
			if err != nil {
				return nil, err
			}

			err = st.Action("page.set", func(ctx context.Context, args ...any) (any, error) {
				index, _ := argAt(args, 0).(int)
				if index < 0 {
					index = 0
				}
				return nil, st.Set("page.index", index)
			}, name, store.Invalidates(PageStageKey))
			if err != nil {
				return nil, err
			}

			err = st.Action("page.resize", func(ctx context.Context, args ...any) (any, error) {
				size, _ := argAt(args, 0).(int)
				st.Batch(func() {
					_ = st.Set("page.size", size)
					_ = st.Set("page.index", 0)
				})
				api.FireEvent("page:changed", size)
				return nil, nil
			}, name, store.Invalidates(PageStageKey))
			if err != nil {
				return nil, err
			}

			return nil, api.Register(name, map[string]any{
				"set": func(index int) {
					_, _ = st.Exec("page.set", index)
				},
				"resize": func(size int) {
					_, _ = st.Exec("page.resize", size)
				},
				"index": func() int {
					index, _ := st.Peek("page.index").(int)
					return index
				},
			})
		},
	}
}
