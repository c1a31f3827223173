package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the mail and calendar tools as an MCP server over stdio",
	Long: `Runs the tools as an MCP server on stdin/stdout so another agent can call
them. Logs are discarded unless --log-file is set. The OAuth callback is
still served over HTTP.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		server := a.mcpServer()

		mux := http.NewServeMux()
		mux.Handle("/oauth", a.oauthHandler())
		mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
		mux.Handle("/metrics", a.metricsHandler())

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

		a.authorizeIfNeeded()

		stopHTTP, errHTTPCh := serveHTTP(a.logger, &http.Server{Handler: mux}, a.ln)
		defer stopHTTP()

		stopStdio, errStdioCh := serveStdio(a.logger, server)
		defer stopStdio()

		select {
		case err := <-errHTTPCh:
			return err
		case err, ok := <-errStdioCh:
			if ok {
				return err
			}
			a.logger.Info("stdio closed by client")
		case <-shutdown:
			a.logger.Info("shutdown signal received")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func serveStdio(logger *zap.Logger, srv *mcp.Server) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errStdioCh)
		logger.Info("starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			errStdioCh <- fmt.Errorf("srv.Run failed: %w", err)
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		logger.Info("stdio transport stopped")
	}, errStdioCh
}
