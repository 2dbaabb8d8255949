package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	climcp "github.com/deixis/clibridge/internal/mcp"
	"github.com/deixis/clibridge/internal/metrics"
)

func newMCPCommand(cli *CLI) *cobra.Command {
	var (
		httpAddr     string
		instructions bool
		noRoots      bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio, or on streamable HTTP with --http.

In HTTP mode Prometheus metrics are served on /metrics alongside the MCP endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if instructions {
				fmt.Fprint(cmd.OutOrStdout(), climcp.Instructions)
				return nil
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			engine, err := cli.newEngine(metrics.MustNewMetrics(reg))
			if err != nil {
				return err
			}

			opts := []climcp.ServerOption{climcp.WithLogger(cli.log)}
			if noRoots {
				opts = append(opts, climcp.WithoutRoots())
			}
			server := climcp.NewServer(engine, opts...)

			if httpAddr != "" {
				return cli.serveHTTP(cmd.Context(), server, reg, httpAddr)
			}
			cli.log.Info("serving MCP on stdio", "workspace", engine.Workspace())
			return server.Run(cmd.Context(), &mcpsdk.StdioTransport{})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	cmd.Flags().BoolVar(&instructions, "instructions", false, "print model instructions and exit")
	cmd.Flags().BoolVar(&noRoots, "no-roots", false, "ignore client roots and keep the startup workspace")
	return cmd
}

func (c *CLI) serveHTTP(ctx context.Context, server *mcpsdk.Server, reg *prometheus.Registry, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	c.log.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
