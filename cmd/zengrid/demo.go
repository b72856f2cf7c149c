package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/zengrid-dev/zengrid/internal/metrics"
	"github.com/zengrid-dev/zengrid/pkg/grid"
	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

func demoCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted grid session and print the visible rows",
		Long: `Build an in-memory grid with the reference plugins, run a short
scripted interaction (sort, filter, page, select), and print the
resulting view after each step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	return cmd
}

// sampleRows is the fixture data set used by demo and serve.
func sampleRows() []grid.Row {
	return []grid.Row{
		{"name": "Ada", "city": "London", "age": 36},
		{"name": "Grace", "city": "Arlington", "age": 85},
		{"name": "Edsger", "city": "Rotterdam", "age": 72},
		{"name": "Barbara", "city": "Boston", "age": 76},
		{"name": "Donald", "city": "Milwaukee", "age": 86},
	}
}

// buildHost wires a store, pipeline registry, and the reference plugins
// into a running host with its own dispatch loop.
func buildHost(verbose bool) (*plugin.Host, *pipeline.Registry, *prometheus.Registry, func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	promReg := prometheus.NewRegistry()
	met := metrics.New(promReg, "zengrid")

	st := store.New(store.WithLogger(logger), store.WithMetrics(met))
	host := plugin.NewHost(st, plugin.WithLogger(logger), plugin.WithMetrics(met))
	reg := pipeline.NewRegistry()

	if err := grid.Install(host, reg, sampleRows()); err != nil {
		host.Destroy()
		return nil, nil, nil, nil, err
	}

	stopLoop := st.StartLoop()
	stop := func() {
		stopLoop()
		host.Destroy()
	}
	return host, reg, promReg, stop, nil
}

func runDemo(verbose bool) error {
	host, _, _, stop, err := buildHost(verbose)
	if err != nil {
		return err
	}
	defer stop()

	st := host.Store()
	api := host.API()

	printView := func(label string) {
		// Settle the dispatch loop and any async stage first.
		time.Sleep(100 * time.Millisecond)
		indices, _ := st.GetUnphased(pipeline.ViewIndicesKey).([]int)
		rows, _ := st.GetUnphased(pipeline.RowsRawKey).([]grid.Row)
		fmt.Printf("%s:\n", label)
		for _, idx := range indices {
			if idx >= 0 && idx < len(rows) {
				fmt.Printf("  %v\t%v\t%v\n", rows[idx]["name"], rows[idx]["city"], rows[idx]["age"])
			}
		}
		fmt.Println()
	}

	printView("initial order")

	if _, err := st.Exec("sort.toggle", "name"); err != nil {
		return err
	}
	printView("sorted by name")

	if _, err := st.Exec("filter.set", "o"); err != nil {
		return err
	}
	printView(`filtered by "o"`)

	if _, err := st.Exec("page.resize", 2); err != nil {
		return err
	}
	printView("page size 2")

	if _, err := st.Exec("selection.toggle", 0); err != nil {
		return err
	}
	if count, ok := api.Method("selection", "count").(func() int); ok {
		fmt.Printf("selected rows: %d\n", count())
	}

	return nil
}
