package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/go-mcp-ui"
	"github.com/MegaGrindStone/go-mcp-ui/internal/config"
	"github.com/MegaGrindStone/go-mcp-ui/internal/logging"
	"github.com/MegaGrindStone/go-mcp-ui/todoapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runUI serves one UI session until the host tears it down or ctx is canceled. Snapshots of the
// todo list are rendered to stderr; stdin and stdout only carry the protocol.
func runUI(ctx context.Context, cfg config.Config, stdin io.Reader, stdout, stderr io.Writer) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(stderr, level)

	var transport mcpui.ClientTransport
	switch cfg.Transport {
	case config.TransportSSE:
		transport = mcpui.NewSSEClient(cfg.SSE.URL, nil,
			mcpui.WithSSEClientLogger(logger),
			mcpui.WithSSEClientMaxPayloadSize(cfg.SSE.MaxPayloadSize),
		)
	default:
		transport = mcpui.NewStdIO(stdin, stdout, mcpui.WithStdIOLogger(logger))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	model := todoapp.NewModel(todoapp.WithModelLogger(logger))
	model.OnChange(func(s todoapp.Snapshot) {
		fmt.Fprint(stderr, s.String())
	})

	doc := mcpui.NewMemoryDocument()
	bridge := mcpui.NewBridge(mcpui.Info{Name: "todo-ui", Version: version}, transport,
		mcpui.WithLogger(logger),
		mcpui.WithRequestTimeout(cfg.Bridge.RequestTimeout),
		mcpui.WithWriteTimeout(cfg.Bridge.WriteTimeout),
		mcpui.WithTeardownTimeout(cfg.Bridge.TeardownTimeout),
		mcpui.WithDocument(doc),
		mcpui.WithToolResultHandler(model),
		mcpui.WithToolInputHandler(model),
		mcpui.WithHostContextWatcher(hostContextLogger{logger: logger}),
		mcpui.WithTeardownHandler(mcpui.TeardownFunc(func(context.Context) error {
			snap := model.Snapshot()
			logger.Info("tearing down", slog.Int("todos", len(snap.Todos)), slog.Int("remaining", snap.Remaining()))
			return nil
		})),
		mcpui.WithMetrics(reg),
	)
	model.Attach(bridge)

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			sCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sCtx); err != nil {
				logger.Error("failed to shut down metrics server", "err", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- bridge.Serve(ctx)
	}()

	select {
	case <-bridge.Ready():
		if bridge.State() != mcpui.StateReady {
			break
		}
		go func() {
			if err := model.List(ctx); err != nil {
				logger.Error("failed to list todos", "err", err)
			}
		}()
	case err := <-serveErr:
		return serveResult(err)
	}

	return serveResult(<-serveErr)
}

func serveResult(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("bridge stopped: %w", err)
}

type hostContextLogger struct {
	logger *slog.Logger
}

func (h hostContextLogger) OnHostContextChanged(hostCtx mcpui.HostContext) {
	h.logger.Info("host context applied",
		slog.String("theme", string(hostCtx.Theme)),
		slog.Int("styleVariables", len(hostCtx.StyleVariables)),
	)
}
