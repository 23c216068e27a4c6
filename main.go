package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tenderflow/config"
	"tenderflow/enrich"
	"tenderflow/internal/channel"
	"tenderflow/internal/dedup"
	"tenderflow/logger"
	"tenderflow/notifier"
	"tenderflow/processor"
	"tenderflow/reader/ted"
	"tenderflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "Tenderflow")
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tenderflow.Name,
		"version": cfg.Tenderflow.Version,
	}).Info("starting tenderflow")

	if langs := cfg.Pipeline.PreferredLanguages; len(langs) > 0 {
		processor.PreferredLanguages = langs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.AlertBuffer,
		cfg.Storage.S3.Enabled,
	)
	defer channels.Close()

	seen := dedup.NewStore(cfg.Dedup.TTL, cfg.Dedup.MaxKeys)

	var liveRates processor.RateSource
	if cfg.Currency.Live.Enabled {
		liveRates = processor.NewFrankfurterSource(cfg.Currency.Live.URL, cfg.Currency.Live.Timeout)
	}
	converter := processor.NewConverter(liveRates)

	scanner := ted.NewScanner(cfg, channels)
	aggregator := processor.NewAggregator(cfg, converter, channels.Raw, channels.Alerts, channels.Archive)
	notify := notifier.NewNotifier(cfg, channels.Alerts, seen, enrich.New(cfg))

	var archiveWriter *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled {
		archiveWriter, err = writer.NewArchiveWriter(cfg, channels.Archive)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := notify.Start(ctx); err != nil {
			log.WithError(err).Warn("notifier failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := aggregator.Start(ctx); err != nil {
			log.WithError(err).Warn("aggregator failed to start")
		}
	}()

	if archiveWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archiveWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("archive writer failed to start")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scanner.Start(ctx); err != nil {
			log.WithError(err).Warn("scanner failed to start")
		}
	}()

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping scanner")
	scanner.Stop()

	log.Info("stopping aggregator")
	aggregator.Stop()

	log.Info("stopping notifier")
	notify.Stop()

	if archiveWriter != nil {
		log.Info("stopping archive writer")
		archiveWriter.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("tenderflow stopped")
}
