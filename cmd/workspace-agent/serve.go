package main

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hal9000y/workspace-agent/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web chat, the MCP endpoint and the OAuth callback",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		ag, st, err := a.newAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				a.logger.Error("store.Close failed", zap.Error(err))
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		mcpServer := a.mcpServer()
		handler := web.NewHandler(ag,
			web.WithLogger(a.logger.Named("web")),
			web.WithBaseContext(ctx),
			web.WithMount("/oauth", a.oauthHandler()),
			web.WithMount("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil)),
			web.WithMount("/metrics", a.metricsHandler()),
		)

		a.authorizeIfNeeded()

		stopHTTP, errHTTPCh := serveHTTP(a.logger, &http.Server{Handler: handler}, a.ln)
		defer stopHTTP()

		a.logger.Info("chat available", zap.String("url", "http://"+a.ln.Addr().String()+"/"))

		select {
		case err := <-errHTTPCh:
			return err
		case <-ctx.Done():
			a.logger.Info("shutdown signal received")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
