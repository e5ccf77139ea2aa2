// Command coordinator is the support-chatbot backend's entrypoint: a single
// process wiring the ten components (C1-C10) together and running them
// under one task tracker until a signal or a fatal watchdog stall stops it.
//
// Shape grounded on the teacher's cmd/picobot/main.go: a cobra root command
// with a `serve` (the teacher's `gateway`) subcommand that does all the
// wiring and blocks on signal, plus small standalone `config validate` and
// `version` subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/local/supportbot/internal/aisession"
	"github.com/local/supportbot/internal/appeals"
	"github.com/local/supportbot/internal/auth"
	"github.com/local/supportbot/internal/breaker"
	"github.com/local/supportbot/internal/config"
	"github.com/local/supportbot/internal/health"
	"github.com/local/supportbot/internal/heartbeat"
	"github.com/local/supportbot/internal/messenger"
	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/promotions"
	"github.com/local/supportbot/internal/ratelimit"
	"github.com/local/supportbot/internal/responsemonitor"
	"github.com/local/supportbot/internal/router"
	"github.com/local/supportbot/internal/sheets"
	"github.com/local/supportbot/internal/tasks"
	"github.com/local/supportbot/internal/vendorllm"
)

// version is set at build time via -ldflags, following the teacher's
// convention in cmd/picobot/main.go.
var version = "dev"

// partnerLookupAdapter narrows *auth.Service down to aisession.PartnerLookup
// and translates auth.PartnerInfo into aisession.PartnerInfo, keeping the
// tool layer's result shape independent of the auth package's own struct.
type partnerLookupAdapter struct {
	auth *auth.Service
}

func (a partnerLookupAdapter) LookupPartner(ctx context.Context, partnerCode string) (aisession.PartnerInfo, bool, error) {
	info, found, err := a.auth.LookupPartner(ctx, partnerCode)
	if err != nil || !found {
		return aisession.PartnerInfo{}, found, err
	}
	return aisession.PartnerInfo{
		PartnerCode: info.PartnerCode,
		Name:        info.Name,
		Authorized:  info.Authorized,
	}, true, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Support chatbot coordinator",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the coordinator's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or validate configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load configuration and report every validation problem, without starting the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	})
	return configCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator: start every component and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := obslog.NewLogger(os.Stdout, zerolog.InfoLevel)

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory %s: %w", cfg.StateDir, err)
	}

	guard := tasks.NewGuard(cfg.StateDir + "/coordinator.pid")
	if err := guard.Acquire(); err != nil {
		logger.Error().Err(err).Msg("another coordinator instance is already running")
		return err
	}
	defer guard.Release()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := tasks.New(rootCtx, logger)

	breakers := breaker.NewManager(breaker.Config{
		OnStateChange: func(name string, from, to breaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	clientFactory := sheets.NewVendorClientFactory(cfg.Credentials)
	gw := sheets.New(cfg, clientFactory, breakers)
	defer gw.Close()

	authSvc := auth.New(gw, cfg.StateDir+"/auth_cache.db")
	appealsSvc := appeals.New(gw, logger)

	tg, err := messenger.NewTelegram(cfg.Messenger.Token, logger)
	if err != nil {
		return fmt.Errorf("connecting to messenger: %w", err)
	}
	hb := heartbeat.New()
	tg.AttachHeartbeat(hb)

	tools := aisession.NewToolRegistry()
	tools.Register(aisession.NewLookupPartnerTool(partnerLookupAdapter{authSvc}))
	tools.Register(aisession.NewSearchKnowledgeBaseTool(aisession.NoopKnowledgeBase{}))

	vendor := vendorllm.NewClient(cfg.LLM.APIKey)
	historyPath := ""
	if cfg.ChatHistory.Enabled {
		historyPath = cfg.ChatHistory.Path
	}
	// Chat Completions has no server-side assistant concept (see the
	// design note in internal/vendorllm/openai.go), so LLM_ASSISTANT_ID is
	// repurposed here as the chat completions model name.
	sessions := aisession.NewManager(vendor, cfg.LLM.AssistantID, tools, logger, historyPath)

	broadcaster, err := promotions.New(gw, authSvc, tg, cfg.StateDir+"/promotions_sent.tsv", 128, logger)
	if err != nil {
		return fmt.Errorf("starting promotions broadcaster: %w", err)
	}
	defer broadcaster.Close()
	tools.Register(aisession.NewGetActivePromotionsTool(broadcaster))

	monitor := responsemonitor.New(appealsSvc, tg, logger)

	limiter := ratelimit.NewKeyedLimiter(25, 1)
	r := router.New(tg, authSvc, appealsSvc, sessions, limiter, hb, cfg.WebForm.URL, logger)

	hm := health.New(gw, tg, hb, logger)
	watchdog := health.NewWatchdog(hb, tracker, tg, cfg.Admin.UserID, logger)

	tracker.Track("messenger.longpoll", tg.Run)
	tracker.Track("router", r.Run)
	tracker.Track("responsemonitor", monitor.Run)
	tracker.Track("promotions", broadcaster.Run)
	tracker.Track("health.probes", hm.RunProbes)
	tracker.Track("health.watchdog", watchdog.Run)

	logger.Info().Str("version", version).Msg("coordinator started")

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received")
	tracker.Shutdown(10 * time.Second)
	return nil
}
