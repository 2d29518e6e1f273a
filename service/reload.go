package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/logging"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/recommender"
)

// ReloadService 监听模型清单，其他进程发布新模型后加载到本进程。
// 只有构建时间更晚的模型才会替换已发布模型。
type ReloadService struct {
	rec    *recommender.Recommender
	logger zerolog.Logger
}

func NewReloadService(rec *recommender.Recommender, logger zerolog.Logger) *ReloadService {
	return &ReloadService{rec: rec, logger: logging.Component(logger, "reload")}
}

func (s *ReloadService) Serve(ctx context.Context) error {
	ms := s.rec.ModelStore()
	if ms == nil {
		return suture.ErrDoNotRestart
	}
	w, ok := ms.Store().(core.Watcher)
	if !ok {
		s.logger.Info().Str("store", ms.Store().Name()).Msg("store does not support watching, reload disabled")
		return suture.ErrDoNotRestart
	}

	key := ms.ManifestKey()
	s.logger.Info().Str("key", key).Msg("watching model manifest")
	err := w.Watch(ctx, key, func() { s.reload(ctx) })
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}

func (s *ReloadService) reload(ctx context.Context) {
	n, err := s.rec.Load(ctx)
	switch {
	case err != nil:
		metrics.ModelReloads.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("reload models failed")
	case n == 0:
		metrics.ModelReloads.WithLabelValues("unchanged").Inc()
		s.logger.Debug().Msg("manifest changed, published models are newer")
	default:
		metrics.ModelReloads.WithLabelValues("replaced").Inc()
		st := s.rec.Status()
		s.logger.Info().Int("replaced", n).Int("items", st.Items).Int("users", st.Users).Msg("models reloaded")
	}
}

func (s *ReloadService) String() string { return "model-reloader" }
