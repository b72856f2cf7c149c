package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zengrid-dev/zengrid/pkg/devtools"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the debug endpoints over a demo grid",
		Long: `Build the demo grid and expose its introspection surfaces:

  GET /debug/traces          recent trace events
  GET /debug/traces/{id}     one trace's events
  GET /debug/graph           the cell graph
  GET /debug/plugins         plugin order and setup timings
  GET /debug/pipeline        registered pipeline phases
  GET /debug/live            WebSocket stream of trace events
  GET /metrics               Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, verbose)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8466", "Listen address")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	return cmd
}

func runServe(addr string, verbose bool) error {
	host, reg, promReg, stop, err := buildHost(verbose)
	if err != nil {
		return err
	}
	defer stop()

	dt := devtools.NewServer(host, reg, devtools.WithGatherer(promReg))
	defer dt.Close()

	srv := &http.Server{
		Addr:    addr,
		Handler: dt.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Printf("debug server listening on %s\n", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
