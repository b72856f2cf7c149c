package grid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

const (
	filterPhase    = 20
	filterDebounce = 30 * time.Millisecond
)

// Filter contributes a substring match over all columns at phase 20.
// Matching runs as a two-stage async computed: the tracked stage
// snapshots the query and the upstream order, the worker scans rows off
// the loop. Keystroke bursts collapse through the debounce window.
func Filter(reg *pipeline.Registry) plugin.Plugin {
	const name = "filter"
	return plugin.Plugin{
		Name:         name,
		Phase:        filterPhase,
		Dependencies: []string{"rows", "sort"},
		Setup: func(st *store.Store, api *plugin.API) (store.Disposable, error) {
			if err := reg.RegisterPhase(name, filterPhase, FilterStageKey); err != nil {
				return nil, err
			}
			if err := st.Extend("filter.query", "", name, filterPhase); err != nil {
				return nil, err
			}

			err := st.AsyncComputed(FilterStageKey, func() store.AsyncWorker {
				query, _ := st.Get("filter.query").(string)
				rows := rowsAt(st)
				base := upstream(st, SortStageKey)

				return func() (any, error) {
					needle := strings.ToLower(strings.TrimSpace(query))
					if needle == "" {
						return nil, nil
					}
					matched := make([]int, 0, len(base))
					for _, idx := range base {
						if rowMatches(rows, idx, needle) {
							matched = append(matched, idx)
						}
					}
					return matched, nil
				}
			}, name, filterPhase, store.WithDebounce(filterDebounce))
			if err != nil {
				return nil, err
			}

			err = st.Action("filter.set", func(ctx context.Context, args ...any) (any, error) {
				query, _ := argAt(args, 0).(string)
				if err := st.Set("filter.query", query); err != nil {
					return nil, err
				}
				api.FireEvent("filter:changed", query)
				return nil, nil
			}, name, store.Invalidates(FilterStageKey))
			if err != nil {
				return nil, err
			}

			return nil, api.Register(name, map[string]any{
				"set": func(query string) {
					_, _ = st.Exec("filter.set", query)
				},
				"query": func() string {
					query, _ := st.Peek("filter.query").(string)
					return query
				},
				"state": func() store.AsyncState {
					state, _ := st.Peek(FilterStageKey + store.AsyncStatusSuffix).(store.AsyncState)
					return state
				},
			})
		},
	}
}

// rowMatches reports whether any cell of the row contains needle,
// case-insensitively.
func rowMatches(rows []Row, idx int, needle string) bool {
	if idx < 0 || idx >= len(rows) {
		return false
	}
	for _, v := range rows[idx] {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
