package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hal9000y/workspace-agent/internal/agent"
	"github.com/hal9000y/workspace-agent/internal/approval"
	"github.com/hal9000y/workspace-agent/internal/auth"
	"github.com/hal9000y/workspace-agent/internal/config"
	"github.com/hal9000y/workspace-agent/internal/fetch"
	"github.com/hal9000y/workspace-agent/internal/format"
	"github.com/hal9000y/workspace-agent/internal/gservice"
	"github.com/hal9000y/workspace-agent/internal/llm/gemini"
	"github.com/hal9000y/workspace-agent/internal/metrics"
	"github.com/hal9000y/workspace-agent/internal/prompt"
	"github.com/hal9000y/workspace-agent/internal/store"
	"github.com/hal9000y/workspace-agent/internal/tool"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	ln       net.Listener
	oauth    *oauth2.Config
	token    *auth.Token
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	registry *tool.Registry
}

// newApp loads the configuration and wires the Google tools. quiet keeps
// stdout free of logs, as needed by the stdio transport and the terminal chat.
func newApp(cmd *cobra.Command, quiet bool) (*app, error) {
	flags := cmd.Flags()
	cfgPath, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")

	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("config.Load failed: %w", err)
	}
	if debug, _ := flags.GetBool("debug"); debug {
		cfg.Log.Debug = true
	}
	if logFile, _ := flags.GetString("log-file"); logFile != "" {
		cfg.Log.File = logFile
	}
	if addr, _ := flags.GetString("http-addr"); addr != "" {
		cfg.Server.Address = addr
	}

	if err := cfg.RequireGoogle(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, quiet)
	if err != nil {
		return nil, fmt.Errorf("newLogger failed: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return nil, fmt.Errorf("net.Listen failed: %w", err)
	}

	oauthCfg := newOAuthConfig(cfg, ln.Addr().String())

	tok, err := auth.NewToken(oauthCfg, cfg.Google.TokenFile, logger.Named("auth"))
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("auth.NewToken failed: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	svc := gservice.NewGoogle(oauthCfg, tok)
	fetcher := fetch.New(svc,
		fetch.WithConcurrency(cfg.Fetch.Concurrency),
		fetch.WithRate(cfg.Fetch.RatePerSecond, cfg.Fetch.Burst),
		fetch.WithConverter(format.Converter{}),
		fetch.WithLogger(logger.Named("fetch")),
		fetch.WithMetrics(m),
	)
	gate := approval.NewGate(
		approval.WithTimeout(cfg.Approval.Timeout),
		approval.WithLogger(logger.Named("approval")),
		approval.WithMetrics(m),
	)

	reg, err := tool.NewWorkspace(svc, fetcher, gate, tool.WithLogger(logger.Named("tool")), tool.WithMetrics(m))
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("tool.NewWorkspace failed: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		ln:       ln,
		oauth:    oauthCfg,
		token:    tok,
		promReg:  promReg,
		metrics:  m,
		registry: reg,
	}, nil
}

// close persists the OAuth token and flushes logs.
func (a *app) close() {
	a.logger.Info("persisting token if exists")
	if err := a.token.Persist(); err != nil {
		a.logger.Error("tok.Persist failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newAgent builds the model-driven agent and its conversation store.
func (a *app) newAgent(ctx context.Context) (*agent.Agent, store.Store, error) {
	if err := a.cfg.RequireModel(); err != nil {
		return nil, nil, err
	}

	model, err := gemini.New(ctx, a.cfg.Model.APIKey,
		gemini.WithModel(a.cfg.Model.Name),
		gemini.WithTemperature(a.cfg.Model.Temperature),
		gemini.WithLogger(a.logger.Named("gemini")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini.New failed: %w", err)
	}

	st, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("store.Open failed: %w", err)
	}

	ag := agent.New(model, a.registry, st,
		agent.WithMaxSteps(a.cfg.Agent.MaxSteps),
		agent.WithParallelTools(a.cfg.Agent.ParallelTools),
		agent.WithSystemPromptFunc(prompt.Builder(a.registry.Specs(), time.Now)),
		agent.WithLogger(a.logger.Named("agent")),
		agent.WithMetrics(a.metrics),
	)

	return ag, st, nil
}

func (a *app) mcpServer() *mcp.Server {
	return tool.NewServer(a.registry, version)
}

func (a *app) oauthHandler() http.Handler {
	return auth.NewHTTPHandler(a.token, a.logger.Named("auth"))
}

func (a *app) metricsHandler() http.Handler {
	return promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})
}

// authorizeIfNeeded opens the consent page when no token is cached yet.
func (a *app) authorizeIfNeeded() {
	if _, err := a.token.OAuthToken(); !errors.Is(err, auth.ErrTokenNotSet) {
		return
	}

	if a.cfg.Server.OpenBrowser {
		openBrowser(a.logger, a.oauth.RedirectURL)
		return
	}
	a.logger.Warn("google account not authorized, open the link in a browser", zap.String("url", a.oauth.RedirectURL+"?redirect=1"))
}

func newOAuthConfig(cfg *config.Config, lnAddr string) *oauth2.Config {
	oauthURL := fmt.Sprintf("http://%s/oauth", lnAddr)
	if cfg.Server.OAuthURL != "" {
		oauthURL = cfg.Server.OAuthURL
	}

	return &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  oauthURL,
		Scopes:       gservice.Scopes,
		Endpoint:     google.Endpoint,
	}
}

// newLogger logs to cfg.File when set. Otherwise it logs to stdout, or
// nowhere when quiet.
func newLogger(cfg config.Log, quiet bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch {
	case cfg.File != "":
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	case quiet:
		return zap.NewNop(), nil
	default:
		zc.OutputPaths = []string{"stdout"}
	}

	return zc.Build()
}

func serveHTTP(logger *zap.Logger, srv *http.Server, ln net.Listener) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		logger.Info("starting http server", zap.String("addr", ln.Addr().String()))

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("srv.Serve failed: %w", err)
			logger.Error("http server failed", zap.Error(err))
			errHTTPCh <- err
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("srv.Shutdown failed", zap.Error(err))
		}

		<-errHTTPCh
		logger.Info("http server stopped")
	}, errHTTPCh
}

func openBrowser(logger *zap.Logger, url string) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		logger.Warn("could not open browser automatically, please open the link", zap.String("url", url), zap.Error(err))
	}
}
