package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raaihank/llm-anonymizer/internal/audit"
	"github.com/raaihank/llm-anonymizer/internal/config"
	"github.com/raaihank/llm-anonymizer/internal/patternstore"
	"github.com/raaihank/llm-anonymizer/internal/server"
	"github.com/raaihank/llm-anonymizer/internal/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, log, err := ctx.pipeline(false)
			if err != nil {
				return err
			}
			defer log.Sync()

			if port > 0 {
				cfg.Server.Port = port
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("Starting llm-anonymizer",
				zap.String("version", version),
				zap.String("commit", commit),
				zap.String("build_date", date),
				zap.Int("port", cfg.Server.Port),
				zap.Int("patterns", len(p.ListPatterns())),
			)

			var opts []server.Option
			opts = append(opts, server.WithVersion(version))

			if cfg.PatternStore.Enabled {
				store, err := patternstore.New(patternStoreConfig(cfg), log.WithComponent("patternstore").Logger)
				if err != nil {
					return err
				}
				defer store.Close()

				n, err := store.Sync(runCtx, p.Registry())
				if err != nil {
					log.Warn("Some stored patterns could not be loaded", zap.Error(err))
				}
				log.Info("Shared patterns loaded", zap.Int("count", n))
				p.Observe(store.Observer())
			}

			var recorder *audit.Recorder
			recorderCtx, stopRecorder := context.WithCancel(context.Background())
			defer stopRecorder()
			if cfg.Audit.Enabled {
				auditStore, err := audit.Open(audit.Config{
					Driver:       cfg.Audit.Driver,
					DSN:          cfg.Audit.DSN,
					MaxOpenConns: cfg.Audit.MaxOpenConns,
					MaxIdleConns: cfg.Audit.MaxIdleConns,
					MaxLifetime:  cfg.Audit.MaxLifetime,
					BufferSize:   cfg.Audit.BufferSize,
				}, log.WithComponent("audit").Logger)
				if err != nil {
					return err
				}
				defer auditStore.Close()

				recorder = audit.NewRecorder(auditStore, cfg.Audit.BufferSize, log.WithComponent("audit").Logger)
				recorder.Start(recorderCtx)
				p.Observe(recorder.Observer())
				opts = append(opts, server.WithAudit(auditStore))
			}

			if cfg.WebSocket.Enabled {
				hub := websocket.NewHub(hubConfig(cfg), log.WithComponent("websocket").Logger)
				go hub.Run(runCtx)
				p.Observe(hub.Observer())
				opts = append(opts, server.WithHub(hub))
			}

			if _, v, _ := ctx.ensureConfig(); v.ConfigFileUsed() != "" {
				config.Watch(v, func(newConfig *config.Config) {
					reloadPatterns(p, newConfig, log.Logger)
				}, func(err error) {
					log.Warn("Configuration reload rejected", zap.Error(err))
				})
			}

			srv := server.New(cfg, p, log, opts...)
			runErr := srv.Run(runCtx)

			if recorder != nil {
				stopRecorder()
				recorder.Wait()
				if dropped := recorder.Dropped(); dropped > 0 {
					log.Warn("Audit runs dropped", zap.Int64("count", dropped))
				}
			}

			if runErr != nil {
				return fmt.Errorf("server failed: %w", runErr)
			}
			log.Info("llm-anonymizer stopped")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config)")
	return cmd
}

func hubConfig(cfg *config.Config) *websocket.HubConfig {
	ws := cfg.WebSocket
	return &websocket.HubConfig{
		BroadcastAnonymizations: ws.Events.BroadcastAnonymizations,
		BroadcastDetections:     ws.Events.BroadcastDetections,
		BroadcastPatternChanges: ws.Events.BroadcastPatternChanges,
		BroadcastConnections:    ws.Events.BroadcastConnections,
		Username:                ws.Username,
		Password:                ws.Password,
		MaxConnections:          ws.MaxConnections,
		AllowedOrigins:          ws.AllowedOrigins,
		ReadBufferSize:          ws.ReadBufferSize,
		WriteBufferSize:         ws.WriteBufferSize,
		PingInterval:            ws.PingInterval,
		PongTimeout:             ws.PongTimeout,
		WriteTimeout:            ws.WriteTimeout,
		MaxMessageSize:          ws.MaxMessageSize,
	}
}
