package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/commands"
	"github.com/latoulicious/nekobeat/internal/config"
	"github.com/latoulicious/nekobeat/internal/guild"
	"github.com/latoulicious/nekobeat/internal/handlers"
	"github.com/latoulicious/nekobeat/internal/presence"
	"github.com/latoulicious/nekobeat/pkg/cron"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/metrics"
	"github.com/latoulicious/nekobeat/pkg/neko"
	"github.com/latoulicious/nekobeat/pkg/playback"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/speech"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/latoulicious/nekobeat/pkg/status"
	"github.com/latoulicious/nekobeat/pkg/telemetry"
	"github.com/latoulicious/nekobeat/pkg/voice"
	"github.com/latoulicious/nekobeat/pkg/youtube"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	shutdownTimeout  = 10 * time.Second
	poolStartTimeout = 45 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "nekobeat",
		Short:         "Discord music bot with pooled browser fallback and voice commands",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadEnvFile()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("prefix", config.DefaultCommandPrefix, "text command prefix")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console or json)")
	flags.String("status-addr", "", "listen address of the status server, empty to disable")
	flags.Bool("voice", false, "enable voice commands at startup")
	bindFlag(v, config.KeyCommandPrefix, rootCmd, "prefix")
	bindFlag(v, config.KeyLogLevel, rootCmd, "log-level")
	bindFlag(v, config.KeyLogFormat, rootCmd, "log-format")
	bindFlag(v, config.KeyStatusAddr, rootCmd, "status-addr")
	bindFlag(v, config.KeyVoiceEnabled, rootCmd, "voice")

	rootCmd.AddCommand(newVersionCmd(), newSlashCmd(v))
	return rootCmd
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), commands.Version)
		},
	}
}

// newSlashCmd removes every registered slash command, for cleaning up after
// renames
func newSlashCmd(v *viper.Viper) *cobra.Command {
	slash := &cobra.Command{
		Use:   "slash",
		Short: "Manage registered slash commands",
	}
	slash.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete all registered slash commands",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			dg, err := discordgo.New("Bot " + cfg.DiscordToken)
			if err != nil {
				return fmt.Errorf("create discord session: %w", err)
			}
			if err := dg.Open(); err != nil {
				return fmt.Errorf("open discord session: %w", err)
			}
			defer dg.Close()
			return commands.DeleteAllSlashCommands(dg, logger)
		},
	})
	return slash
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}

	registry := stats.NewRegistry(cfg.Playback.RecentFailures)
	reporter, err := telemetry.NewReporter(telemetry.Config{
		DSN:     cfg.SentryDSN,
		Release: commands.Version,
	}, logger)
	if err != nil {
		return err
	}
	reporter.Attach(registry)

	// Fallback workers
	var workerPool *pool.Pool
	if len(cfg.Pool.URLs) > 0 {
		workers := make([]pool.Worker, 0, len(cfg.Pool.URLs))
		for i, url := range cfg.Pool.URLs {
			workers = append(workers, neko.New(fmt.Sprintf("neko-%d", i+1), neko.Config{
				BaseURL:  url,
				Username: cfg.Pool.Username,
				Password: cfg.Pool.Password,
			}, httpClient, logger))
		}
		workerPool, err = pool.New(workers, cfg.Pool.Capacity, logger)
		if err != nil {
			return fmt.Errorf("create worker pool: %w", err)
		}
		startCtx, cancel := context.WithTimeout(ctx, poolStartTimeout)
		workerPool.Start(startCtx)
		cancel()
	} else {
		logger.Warn("No Neko instances configured, fallback playback disabled")
	}

	provider := youtube.NewProvider(httpClient, logger)
	var fallback playback.WorkerPool
	if workerPool != nil {
		fallback = workerPool
	}
	orchestrator := playback.NewOrchestrator(provider, fallback, registry, playback.Config{
		DirectDeadline:       cfg.Playback.DirectDeadline,
		FallbackReadyTimeout: cfg.Playback.FallbackReadyTimeout,
	}, logger)

	speechConfig := speech.Config{
		STTURL:   cfg.Speech.STTURL,
		TTSURL:   cfg.Speech.TTSURL,
		APIKey:   cfg.Speech.APIKey,
		STTModel: cfg.Speech.STTModel,
		TTSModel: cfg.Speech.TTSModel,
		Voice:    cfg.Speech.Voice,
	}
	providers := voice.Providers{
		Trigger:    voice.DefaultEnergyTrigger(),
		Recognizer: speech.NewRecognizer(speechConfig, httpClient, logger),
		Grammar:    voice.DefaultGrammar(),
	}
	if cfg.Speech.TTSURL != "" {
		providers.Synthesizer = speech.NewSynthesizer(speechConfig, httpClient, logger)
	}
	voiceManager := voice.NewManager(voice.ManagerConfig{
		Enabled:          cfg.Voice.Enabled,
		QueueCapacity:    cfg.Voice.QueueCapacity,
		TriggerThreshold: cfg.Voice.TriggerThreshold,
		IdleTimeout:      cfg.Voice.IdleTimeout,
		Concurrency:      cfg.Voice.Concurrency,
		CostPerMinute:    cfg.Voice.CostPerMinute,
		ReplyPerMinute:   cfg.Voice.ReplyPerMinute,
	}, providers, logger)

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	announcer := commands.NewAnnouncer(dg, logger)
	resolver := commands.NewYouTubeResolver(provider)
	guilds := guild.NewRegistry(orchestrator, resolver, voiceManager, announcer.Events(), logger)
	presenceManager := presence.NewPresenceManager(dg, guilds, logger)
	announcer.UsePresence(presenceManager)

	scheduler := cron.NewScheduler(logger)
	var instances cron.InstanceSource
	if workerPool != nil {
		instances = workerPool
	}
	for _, job := range []cron.Job{
		cron.SessionSweepJob(voiceManager, logger),
		cron.StatsReportJob(registry, instances, logger),
	} {
		if err := scheduler.Add(job); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}

	deps := commands.Deps{
		Config:    cfg,
		Guilds:    guilds,
		Resolver:  resolver,
		Stats:     orchestrator,
		Voice:     voiceManager,
		Scheduler: scheduler,
		Announcer: announcer,
		Logger:    logger,
	}
	// a nil *pool.Pool in the interface would not compare equal to nil
	if workerPool != nil {
		deps.Workers = workerPool
	}
	bot := commands.NewBot(deps)

	var statusServer *status.Server
	if cfg.StatusAddr != "" {
		promRegistry := prometheus.NewRegistry()
		var poolSource metrics.PoolSource
		sources := status.Sources{Stats: orchestrator, Voice: voiceManager, Gatherer: promRegistry}
		if workerPool != nil {
			poolSource = workerPool
			sources.Pool = workerPool
		}
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			metrics.NewCollector(registry, poolSource, voiceManager),
		)

		statusServer = status.NewServer(sources, logger)
		go func() {
			if err := statusServer.Start(cfg.StatusAddr); err != nil {
				logger.Error("Status server stopped", logging.Error(err))
			}
		}()
		logger.Info("Status server listening", logging.String("addr", cfg.StatusAddr))
	}

	dg.AddHandler(handlers.MessageHandler(bot))
	dg.AddHandler(handlers.SlashCommandHandler(bot, logger))
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Connected to Discord",
			logging.String("user", r.User.Username),
			logging.Int("guilds", len(r.Guilds)))
		if err := commands.RegisterSlashCommands(s, logger); err != nil {
			logger.Error("Failed to register slash commands", logging.Error(err))
		}
		presenceManager.Refresh()
	})

	// Open a websocket connection to Discord and begin listening.
	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	presenceManager.StartPeriodicUpdates(ctx)
	scheduler.Start()

	logger.Info("Bot is running. Press CTRL-C to exit.",
		logging.String("prefix", cfg.CommandPrefix),
		logging.Int("workers", len(cfg.Pool.URLs)),
		logging.Bool("voice_enabled", voiceManager.Enabled()))
	<-ctx.Done()

	logger.Info("Shutting down")
	scheduler.Stop()
	bot.Shutdown(dg)
	voiceManager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if statusServer != nil {
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop status server", logging.Error(err))
		}
	}
	reporter.Flush(2 * time.Second)

	// Cleanly close down the Discord session.
	return dg.Close()
}
