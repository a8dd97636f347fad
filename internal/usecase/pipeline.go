package usecase

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tellerdesk/internal/domain"
	"tellerdesk/internal/ports"
)

// PipelineConfig sizes the audio ingestion pipeline.
type PipelineConfig struct {
	Workers           int
	QueueDepth        int
	TranscribeTimeout time.Duration
	MaxFragmentLen    int
	DetectionWindow   int
}

// AudioPipeline drains inbound audio chunks through decode, transcription,
// transcript append, incremental detection and fragment persistence.
//
// Each workstation hashes to a fixed worker and each worker owns one FIFO
// queue, so chunks of the same session are always processed in enqueue
// order. When a queue is full the chunk is dropped with a warning; inbound
// audio is fire-and-forget and the transport goroutine must never block.
type AudioPipeline struct {
	registry    *SessionRegistry
	transcriber ports.Transcriber
	store       ports.Store
	detector    ports.IntentDetector
	logger      *slog.Logger
	cfg         PipelineConfig

	queues []chan domain.AudioChunk
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAudioPipeline builds the pipeline. Zero config fields get defaults.
func NewAudioPipeline(
	registry *SessionRegistry,
	transcriber ports.Transcriber,
	store ports.Store,
	detector ports.IntentDetector,
	logger *slog.Logger,
	cfg PipelineConfig,
) *AudioPipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 30 * time.Second
	}
	if cfg.MaxFragmentLen <= 0 {
		cfg.MaxFragmentLen = 255
	}
	if cfg.DetectionWindow <= 0 {
		cfg.DetectionWindow = 800
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &AudioPipeline{
		registry:    registry,
		transcriber: transcriber,
		store:       store,
		detector:    detector,
		logger:      logger.With("component", "pipeline"),
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
	}
	p.queues = make([]chan domain.AudioChunk, cfg.Workers)
	for i := range p.queues {
		p.queues[i] = make(chan domain.AudioChunk, cfg.QueueDepth)
	}
	return p
}

// Start launches the worker pool.
func (p *AudioPipeline) Start() {
	for i, queue := range p.queues {
		p.wg.Add(1)
		go p.workerLoop(i, queue)
	}
	p.logger.Info("audio pipeline started", "workers", p.cfg.Workers, "queue_depth", p.cfg.QueueDepth)
}

// Stop drains nothing: workers finish their current chunk and exit.
func (p *AudioPipeline) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("audio pipeline stopped")
}

// Enqueue hands a chunk to the worker owning its workstation. It reports
// whether the chunk was accepted; unsupported formats and full queues drop.
func (p *AudioPipeline) Enqueue(chunk domain.AudioChunk) bool {
	if !chunk.Format.Supported() {
		p.logger.Warn("unsupported audio format, chunk dropped",
			"workstation", chunk.WorkstationID, "format", string(chunk.Format))
		return false
	}
	if len(chunk.Data) == 0 {
		p.logger.Warn("empty audio chunk dropped", "workstation", chunk.WorkstationID)
		return false
	}

	queue := p.queues[p.workerFor(chunk.WorkstationID)]
	select {
	case queue <- chunk:
		return true
	default:
		p.logger.Warn("audio queue full, chunk dropped",
			"workstation", chunk.WorkstationID, "seq", chunk.Seq)
		return false
	}
}

func (p *AudioPipeline) workerFor(workstationID string) int {
	h := fnv.New32a()
	h.Write([]byte(workstationID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *AudioPipeline) workerLoop(index int, queue <-chan domain.AudioChunk) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case chunk := <-queue:
			// A failed chunk is audio loss, never a stalled worker.
			if err := p.process(chunk); err != nil {
				p.logger.Warn("chunk processing failed",
					"worker", index, "workstation", chunk.WorkstationID,
					"seq", chunk.Seq, "error", err)
			}
		}
	}
}

func (p *AudioPipeline) process(chunk domain.AudioChunk) error {
	state := p.registry.activeState(chunk.WorkstationID)
	if state == nil {
		p.logger.Debug("no active session, chunk dropped",
			"workstation", chunk.WorkstationID, "seq", chunk.Seq)
		return nil
	}

	audio, err := decodeAudio(chunk)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.TranscribeTimeout)
	text, err := p.transcriber.Transcribe(ctx, audio, chunk.Format, chunk.SampleRate)
	cancel()
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	parts, window, locked := state.append(text, p.cfg.MaxFragmentLen, p.cfg.DetectionWindow)

	now := time.Now()
	for _, part := range parts {
		if _, err := p.store.AppendFragment(p.ctx, state.id, part.seq, part.text, now); err != nil {
			p.logger.Warn("fragment persist failed", "session", state.id, "seq", part.seq, "error", err)
		}
	}

	if locked {
		return nil
	}
	det := p.detector.Detect(window)
	if det.ServiceKey == "" || !p.detector.ShouldLock(det.ServiceKey, det.Confidence) {
		return nil
	}
	if err := p.registry.LockDetected(p.ctx, chunk.WorkstationID, det); err != nil {
		return fmt.Errorf("lock service: %w", err)
	}
	return nil
}

var riffMagic = []byte("RIFF")

// decodeAudio validates the chunk and yields the bytes handed to the
// transcriber. PCM is checked for sample alignment, WAV for its container
// header; compressed formats pass through for the collaborator to decode.
func decodeAudio(chunk domain.AudioChunk) ([]byte, error) {
	switch chunk.Format {
	case domain.AudioFormatPCM16:
		if len(chunk.Data)%2 != 0 {
			return nil, fmt.Errorf("pcm16 payload has odd length %d", len(chunk.Data))
		}
		return chunk.Data, nil
	case domain.AudioFormatWAV:
		if len(chunk.Data) < 44 || !bytes.HasPrefix(chunk.Data, riffMagic) {
			return nil, fmt.Errorf("malformed wav header")
		}
		return chunk.Data, nil
	case domain.AudioFormatMP3:
		return chunk.Data, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", chunk.Format)
	}
}
