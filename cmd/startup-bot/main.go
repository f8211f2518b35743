package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/newdeveloper1101-crypto/Startup/internal/ai"
	"github.com/newdeveloper1101-crypto/Startup/internal/bot"
	"github.com/newdeveloper1101-crypto/Startup/internal/config"
	"github.com/newdeveloper1101-crypto/Startup/internal/dashboard"
	"github.com/newdeveloper1101-crypto/Startup/internal/handover"
	"github.com/newdeveloper1101-crypto/Startup/internal/memory"
	"github.com/newdeveloper1101-crypto/Startup/internal/opsfeed"
	"github.com/newdeveloper1101-crypto/Startup/internal/proxy"
	"github.com/newdeveloper1101-crypto/Startup/internal/speech"
	"github.com/newdeveloper1101-crypto/Startup/internal/telegram"
	"github.com/newdeveloper1101-crypto/Startup/pkg/audioconv"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	if len(cfg.AdminIDs) == 0 {
		log.Warn("ADMIN_IDS not configured, admin commands disabled")
	}
	log.Info("Configuration loaded", cfg.Redacted()...)

	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIKey)}
	if cfg.SocksProxy != "" {
		httpClient, err := proxy.NewSocksClient(cfg.SocksProxy, 120*time.Second)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.SocksProxy, "err", err)
			os.Exit(1)
		}
		opts = append(opts, option.WithHTTPClient(httpClient))
		log.Debug("Loaded proxy")
	}
	api := openai.NewClient(opts...)

	var store memory.Store
	if cfg.UseRedis {
		rs, err := memory.NewRedisStore(context.Background(), cfg.RedisURL, cfg.MaxHistory)
		if err != nil {
			log.Error("Failed to connect redis", "url", cfg.RedisURL, "err", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
		log.Info("History store: redis", "ttl_days", 30)
	} else {
		store = memory.NewLocalStore(cfg.MaxHistory)
		log.Info("History store: in-process")
	}

	completer := ai.NewClient(api, cfg.Model, cfg.Temperature)

	var feed *opsfeed.Hub
	if cfg.OpsFeedAddr != "" {
		feed = opsfeed.NewHub()
		go func() {
			if err := feed.Serve(cfg.OpsFeedAddr); err != nil {
				log.Error("Ops feed stopped", "err", err)
			}
		}()
	}

	maxSamples := cfg.MaxVoiceDuration * 16000
	decode := func(ctx context.Context, in, out string) error {
		return audioconv.DecodeToWAV(ctx, in, out, audioconv.Options{MaxSamples: maxSamples})
	}

	tg := telegram.NewClient(cfg.TelegramToken, nil)

	dispatcher := bot.NewDispatcher(cfg, bot.Deps{
		Memory:      memory.NewManager(store),
		Router:      handover.NewRouter(),
		Messenger:   tg,
		Completer:   completer,
		Transcriber: speech.NewTranscriber(api),
		Synthesizer: speech.NewSynthesizer(api),
		Decode:      decode,
		Insights:    dashboard.NewManager(completer),
		Feed:        feed,
	})

	log.Info("Boot up - successful")

	var offset int64
	for {
		updates, err := tg.GetUpdates(context.Background(), offset)
		if err != nil {
			log.Error("Poll failed", "err", err)
			time.Sleep(3 * time.Second)
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			dispatcher.Handle(upd)
		}
	}
}
