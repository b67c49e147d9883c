package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/internal/core/services"
	"meshcall/internal/infrastructure/ai"
	"meshcall/internal/infrastructure/media"
	"meshcall/internal/infrastructure/signal"
	webrtcinfra "meshcall/internal/infrastructure/webrtc"
	"meshcall/pkg/config"
	"meshcall/pkg/logger"
	"meshcall/pkg/validation"

	"github.com/pion/webrtc/v3"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/config.yaml", "path to config file")
		displayName = flag.String("name", "", "display name shown to other participants")
		joinCode    = flag.String("join", "", "join code of an existing meeting; empty starts a new one")
		avatarRef   = flag.String("avatar", "", "optional avatar URL")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if err := validation.ValidateDisplayName(*displayName); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -name: %v\n", err)
		os.Exit(1)
	}
	if *joinCode != "" {
		if err := validation.ValidateMeetingCode(*joinCode); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -join: %v\n", err)
			os.Exit(1)
		}
	}
	if *avatarRef != "" {
		if err := validation.ValidateAvatarRef(*avatarRef); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -avatar: %v\n", err)
			os.Exit(1)
		}
	}

	// Frame transform: remote service when configured, local blur otherwise.
	var transformer ports.FrameTransformer
	if cfg.Media.TransformURL != "" {
		transformer = media.NewHTTPTransformer(cfg.Media.TransformURL)
	} else {
		transformer = media.NewBoxBlurTransformer(4)
	}

	provider := media.NewProvider(media.Options{
		Width:         cfg.Media.Width,
		Height:        cfg.Media.Height,
		FrameRate:     cfg.Media.FrameRate,
		FrameTimeout:  cfg.Media.FrameTimeout,
		FallbackAfter: cfg.Media.FallbackAfter,
	}, func() (ports.MediaSource, error) {
		return media.NewSyntheticSource(cfg.Media.Width, cfg.Media.Height, cfg.Media.FrameRate)
	}, transformer, log)

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.Client.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	assistant := ai.NewAssistant(cfg.Assistant.BaseURL, cfg.Assistant.Model, cfg.Assistant.Timeout, log)
	chat := services.NewChatService(assistant, log)
	quality := services.NewQualityService()

	newTransport := func(events ports.TransportEvents) ports.PeerTransport {
		client := signal.NewClient(cfg.Client.RendezvousURL, log)
		return webrtcinfra.NewTransport(client, provider, iceServers, events, log)
	}

	coordinator := services.NewCoordinator(provider, chat, quality, newTransport, log)
	coordinator.SetReactionTimings(cfg.Presence.ReactionTTL, cfg.Presence.SweepInterval)

	go func() {
		for notice := range coordinator.Notices() {
			fmt.Printf("* %s\n", notice)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.ConnectTimeout)
	identity := domain.Identity{DisplayName: *displayName, AvatarRef: *avatarRef}
	if err := coordinator.Join(ctx, identity, domain.PeerID(*joinCode)); err != nil {
		cancel()
		log.Fatalw("failed to join", "error", err)
	}
	cancel()

	localID := coordinator.LocalID()
	if *joinCode == "" {
		fmt.Printf("meeting started; share this join code: %s\n", localID)
	} else {
		fmt.Printf("joined meeting %s as %s\n", *joinCode, localID)
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			participants := coordinator.Participants()
			fmt.Printf("participants: %d\n", len(participants))
			for _, p := range participants {
				fmt.Printf("  %s (%s) muted=%v camera_off=%v quality=%s\n",
					p.DisplayName, p.ID, p.Muted, p.CameraOff, p.Quality)
			}

		case sig := <-sigChan:
			log.Infow("received shutdown signal", "signal", sig)
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := coordinator.Leave(leaveCtx); err != nil {
				log.Errorw("error leaving meeting", "error", err)
			}
			leaveCancel()
			return
		}
	}
}
