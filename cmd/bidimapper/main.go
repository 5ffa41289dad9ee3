package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bidimapper/internal/config"
	"bidimapper/internal/logger"
	"bidimapper/internal/transport"
	"bidimapper/pkg/api"
	"bidimapper/pkg/domain"
)

type frameHandler struct {
	svc api.Service
}

func (h *frameHandler) OnConnect(t *transport.Conn) func() {
	h.svc.AttachTransport(t)
	return func() {
		h.svc.AttachTransport(nil)
	}
}

func (h *frameHandler) OnFrame(raw []byte) {
	h.svc.HandleFrame(raw)
}

func main() {
	cfgPath := flag.String("config", "", "yaml 配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	l := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
	})

	svc := api.NewService(domain.MapperOptions{
		DevToolsURL:             cfg.DevToolsURL,
		AcceptInsecureCerts:     cfg.Mapper.AcceptInsecureCerts,
		UnhandledPromptBehavior: domain.UnhandledPromptBehavior(cfg.Mapper.UnhandledPromptBehavior),
		IdleTimeoutMS:           cfg.Mapper.IdleTimeoutMS,
		TrafficDSN:              cfg.Sqlite.Dsn,
	}, cfg.Sqlite.Prefix, l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		l.Error("启动失败", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/session", transport.NewServer(&frameHandler{svc: svc}, l))
	mux.Handle("/metrics", promhttp.HandlerFor(svc.Metrics(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.Listen, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("BiDi 端点监听", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		server.Close()
		return svc.Stop()
	})
	if err := g.Wait(); err != nil {
		l.Error("退出", "error", err)
		os.Exit(1)
	}
}
