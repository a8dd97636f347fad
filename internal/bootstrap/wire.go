package bootstrap

import (
	"context"
	"log/slog"

	"tellerdesk/internal/config"
	"tellerdesk/internal/detect"
	"tellerdesk/internal/providers/whisper"
	"tellerdesk/internal/push"
	"tellerdesk/internal/sop"
	"tellerdesk/internal/store"
	"tellerdesk/internal/transport"
	"tellerdesk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config   config.Config
	Store    *store.Store
	Hub      *push.Hub
	Registry *usecase.SessionRegistry
	Pipeline *usecase.AudioPipeline
	Router   *usecase.EventRouter
	MQTT     *transport.Client
}

// Build wires all backend dependencies, seeds the SOP catalog and recovers
// any sessions left open by a previous run.
func Build(ctx context.Context, logger *slog.Logger) (Services, error) {
	cfg := config.Load()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return Services{}, err
	}

	catalog := sop.NewCatalog(st)
	if err := catalog.Seed(ctx); err != nil {
		st.Close()
		return Services{}, err
	}

	hub := push.NewHub(logger)
	mqttClient := transport.NewClient(transport.Config{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
	}, logger)

	checklists := usecase.NewChecklistManager(st, catalog, hub, logger)
	registry := usecase.NewSessionRegistry(st, checklists, hub, mqttClient, logger)

	detector := detect.NewDetector(detect.DefaultRules())
	transcriber := whisper.NewClient(whisper.Config{
		BaseURL:  cfg.Whisper.BaseURL,
		Language: cfg.Whisper.Language,
		Timeout:  cfg.Whisper.Timeout,
	})

	pipeline := usecase.NewAudioPipeline(registry, transcriber, st, detector, logger, usecase.PipelineConfig{
		Workers:           cfg.Pipeline.Workers,
		QueueDepth:        cfg.Pipeline.QueueDepth,
		TranscribeTimeout: cfg.Pipeline.TranscribeTimeout,
		MaxFragmentLen:    cfg.Pipeline.MaxFragmentLen,
		DetectionWindow:   cfg.Pipeline.DetectionWindow,
	})

	router := usecase.NewEventRouter(st, registry, checklists, pipeline, logger)
	mqttClient.SetRouter(router)
	hub.SetHandler(router)

	workstations, err := st.Workstations(ctx)
	if err != nil {
		st.Close()
		return Services{}, err
	}
	if err := registry.Recover(ctx, st, workstations); err != nil {
		st.Close()
		return Services{}, err
	}

	return Services{
		Config:   cfg,
		Store:    st,
		Hub:      hub,
		Registry: registry,
		Pipeline: pipeline,
		Router:   router,
		MQTT:     mqttClient,
	}, nil
}
