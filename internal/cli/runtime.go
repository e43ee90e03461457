package cli

import (
	"context"
	"log/slog"

	"github.com/tradetape/tradetape/internal/config"
	"github.com/tradetape/tradetape/internal/embedding"
	"github.com/tradetape/tradetape/internal/journal"
	"github.com/tradetape/tradetape/internal/obs"
	"github.com/tradetape/tradetape/internal/recall"
	"github.com/tradetape/tradetape/internal/tap"
	"github.com/tradetape/tradetape/internal/vindex"
)

// runtime bundles the wired handles every command works through. Commands
// open it once, run, and close it on exit.
type runtime struct {
	cfg     *config.Config
	store   journal.Store
	builder *embedding.Builder
	index   *vindex.Index
	pub     *tap.Publisher
	tel     *obs.Telemetry
	svc     *recall.Service
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg.Log.Level)

	store, err := journal.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	builder, err := embedding.NewBuilder(cfg.Embedding)
	if err != nil {
		store.Close()
		return nil, err
	}
	index, err := vindex.New(cfg.Vector, builder.Method())
	if err != nil {
		store.Close()
		return nil, err
	}
	tel, err := obs.New(ctx, cfg.Telemetry)
	if err != nil {
		index.Close()
		store.Close()
		return nil, err
	}
	pub := tap.NewPublisher(cfg.Tap)

	return &runtime{
		cfg:     cfg,
		store:   store,
		builder: builder,
		index:   index,
		pub:     pub,
		tel:     tel,
		svc:     recall.New(store, builder, index, pub, tel, cfg.Blend),
	}, nil
}

func (r *runtime) close(ctx context.Context) {
	if err := r.tel.Shutdown(ctx); err != nil {
		slog.Warn("Telemetry shutdown failed", "error", err)
	}
	if err := r.pub.Close(); err != nil {
		slog.Warn("Tap close failed", "error", err)
	}
	if err := r.index.Close(); err != nil {
		slog.Warn("Vector index close failed", "error", err)
	}
	if err := r.store.Close(); err != nil {
		slog.Warn("Journal close failed", "error", err)
	}
}
