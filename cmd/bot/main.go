package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/discord-voice-mod/internal/announce"
	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/discord"
	"github.com/discord-voice-mod/internal/history"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/moderation"
	"github.com/discord-voice-mod/internal/sched"
	"github.com/discord-voice-mod/internal/storage/sqlite"
	"github.com/discord-voice-mod/internal/transcribe"
	"github.com/discord-voice-mod/internal/transcript"
)

func main() {
	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}
	defer logging.Sync()

	configPath := flag.String("config", "config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		sugar.Fatalf("configuration invalid: %v", err)
	}

	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		sugar.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ledger, err := sqlite.NewLedgerStore(db)
	if err != nil {
		sugar.Fatalf("failed to init budget ledger: %v", err)
	}
	settingsStore, err := sqlite.NewSettingsStore(db)
	if err != nil {
		sugar.Fatalf("failed to init settings store: %v", err)
	}
	metricsStore, err := sqlite.NewMetricsStore(db)
	if err != nil {
		sugar.Fatalf("failed to init metrics store: %v", err)
	}

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		sugar.Fatalf("discordgo.New: %v", err)
	}
	// Guilds + voice states cover channel resolution and join/leave
	// tracking; members is needed for nickname resolution and is
	// privileged, so it must also be enabled in the Developer Portal.
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers
	dg.State.TrackVoice = true

	if err := dg.Open(); err != nil {
		sugar.Fatalf("discord session open failed: %v", err)
	}
	defer dg.Close()
	sugar.Infow("discord session opened")

	sttClient := transcribe.NewClient(transcribe.ClientOptions{
		URL:               cfg.STT.URL,
		AuthToken:         cfg.STT.AuthToken,
		Language:          cfg.STT.Language,
		TimeoutMs:         cfg.STT.TimeoutMs,
		PricePerMinuteUSD: cfg.STT.PricePerMinuteUSD,
	})
	classifier := moderation.NewClassifier(cfg.Classifier.BaseURL, cfg.Classifier.APIKey, cfg.Classifier.TimeoutMs)

	ttsClient := announce.NewTTSClient(cfg.TTS.URL, cfg.TTS.APIKey, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.TimeoutSec)
	ttsCache, err := announce.NewCache(cfg.Storage.AnnounceCacheDir, cfg.TTS.Model, cfg.TTS.Voice, ttsClient)
	if err != nil {
		sugar.Fatalf("failed to init TTS cache: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *transcript.Hub
	var broadcaster transcript.Broadcaster
	if cfg.Stream.Enabled {
		hub = transcript.NewHub()
		broadcaster = hub
		go func() {
			if err := transcript.Serve(ctx, cfg.Stream.Addr, hub); err != nil {
				logging.Errorw("transcript stream server failed", "err", err)
			}
		}()
	}

	scheduler := sched.New(sched.Deps{
		Transport:   discord.NewTransport(dg),
		Settings:    settingsStore,
		Guilds:      settingsStore,
		Ledger:      ledger,
		Recorder:    metricsStore,
		STT:         sttClient,
		Classifier:  classifier,
		Executor:    discord.NewExecutor(dg),
		Sink:        discord.NewSink(dg),
		Resolver:    discord.NewResolver(dg),
		Announcer:   announce.NewManager(ttsCache),
		Broadcaster: broadcaster,
		History:     history.NewCache(),
		Config:      cfg,
	})

	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Infow("shutdown signal received")

	cancel()
	<-done
	sugar.Infow("shutdown complete")
}
