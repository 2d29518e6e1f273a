// Package trainer 编排一次训练周期：拉取数据、过滤、训练、发布、持久化。
//
// 引擎（recall / recommender / modelstore）本身不记录日志也不重试，这些都在这里完成。
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/bookrec/config"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/logging"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/modelstore"
	"github.com/rushteam/bookrec/pkg/dsl"
	"github.com/rushteam/bookrec/recommender"
)

const (
	modelContent       = "content"
	modelCollaborative = "collaborative"
)

// Result 是一次训练的结果
type Result struct {
	Books                int                 `json:"books"`
	Interactions         int                 `json:"interactions"`
	ContentTrained       bool                `json:"content_trained"`
	CollaborativeTrained bool                `json:"collaborative_trained"`
	Skipped              bool                `json:"skipped,omitempty"`
	Version              *modelstore.Version `json:"version,omitempty"`
}

// Trainer 从数据源训练 Recommender。
type Trainer struct {
	rec    *recommender.Recommender
	source core.DataSource
	cfg    config.TrainingConfig
	logger zerolog.Logger

	catalogFilter     *dsl.Eval
	interactionFilter *dsl.Eval

	now func() time.Time
}

// New 创建 Trainer。source 可以为 nil，此时只能使用内联数据训练。
func New(rec *recommender.Recommender, source core.DataSource, cfg config.TrainingConfig, logger zerolog.Logger) (*Trainer, error) {
	catalogFilter, err := dsl.Compile(cfg.CatalogFilter)
	if err != nil {
		return nil, fmt.Errorf("catalog_filter: %w", err)
	}
	interactionFilter, err := dsl.Compile(cfg.InteractionFilter)
	if err != nil {
		return nil, fmt.Errorf("interaction_filter: %w", err)
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Trainer{
		rec:               rec,
		source:            source,
		cfg:               cfg,
		logger:            logging.Component(logger, "trainer"),
		catalogFilter:     catalogFilter,
		interactionFilter: interactionFilter,
		now:               time.Now,
	}, nil
}

// Run 执行一个完整周期：并发拉取目录与评分，训练两类模型后持久化。
//
// 目录为空时跳过整个周期（保留已发布模型）；评分为空时只跳过协同过滤。
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	if t.source == nil {
		return nil, core.NewDomainError(core.ModuleSource, core.ErrorCodeNotSupported, "trainer: no data source configured")
	}
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	start := t.now()
	var (
		books        []core.Book
		interactions []core.Interaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = t.fetchCatalog(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		interactions, err = t.fetchInteractions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		t.logger.Error().Err(err).Str("source", t.source.Name()).Msg("fetch training data failed")
		return nil, err
	}

	res := &Result{Books: len(books), Interactions: len(interactions)}
	if len(books) == 0 {
		t.logger.Warn().Str("source", t.source.Name()).Msg("catalog is empty, skipping training cycle")
		res.Skipped = true
		return res, nil
	}

	if err := t.trainContent(ctx, books); err != nil {
		return nil, err
	}
	res.ContentTrained = true

	if len(interactions) == 0 {
		t.logger.Warn().Msg("no interactions in window, skipping collaborative training")
	} else {
		if err := t.trainCollaborative(ctx, interactions); err != nil {
			// 内容模型已发布，仍需落盘
			if _, perr := t.persist(ctx); perr != nil {
				return nil, errors.Join(err, perr)
			}
			return nil, err
		}
		res.CollaborativeTrained = true
	}

	v, err := t.persist(ctx)
	if err != nil {
		return nil, err
	}
	res.Version = v

	t.logger.Info().
		Int("books", res.Books).
		Int("interactions", res.Interactions).
		Bool("collaborative", res.CollaborativeTrained).
		Dur("elapsed", time.Since(start)).
		Msg("training cycle finished")
	return res, nil
}

// RunContent 训练内容模型。books 为 nil 时从数据源拉取。
func (t *Trainer) RunContent(ctx context.Context, books []core.Book) (*Result, error) {
	if books == nil {
		if t.source == nil {
			return nil, core.InvalidInputError(core.ModuleSource, "trainer: no books given and no data source configured")
		}
		var err error
		if books, err = t.fetchCatalog(ctx); err != nil {
			return nil, err
		}
	} else {
		var err error
		if books, err = dsl.FilterBooks(t.catalogFilter, books); err != nil {
			return nil, core.InvalidInputError(core.ModuleSource, "catalog filter: %v", err)
		}
	}
	if err := t.trainContent(ctx, books); err != nil {
		return nil, err
	}
	v, err := t.persist(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Books: len(books), ContentTrained: true, Version: v}, nil
}

// RunCollaborative 训练协同过滤模型。interactions 为 nil 时从数据源拉取时间窗口内的评分。
func (t *Trainer) RunCollaborative(ctx context.Context, interactions []core.Interaction) (*Result, error) {
	if interactions == nil {
		if t.source == nil {
			return nil, core.InvalidInputError(core.ModuleSource, "trainer: no interactions given and no data source configured")
		}
		var err error
		if interactions, err = t.fetchInteractions(ctx); err != nil {
			return nil, err
		}
	} else {
		var err error
		if interactions, err = dsl.FilterInteractions(t.interactionFilter, interactions); err != nil {
			return nil, core.InvalidInputError(core.ModuleSource, "interaction filter: %v", err)
		}
	}
	if err := t.trainCollaborative(ctx, interactions); err != nil {
		return nil, err
	}
	v, err := t.persist(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Interactions: len(interactions), CollaborativeTrained: true, Version: v}, nil
}

func (t *Trainer) trainContent(ctx context.Context, books []core.Book) error {
	start := time.Now()
	err := t.rec.TrainContent(ctx, books)
	metrics.RecordTraining(modelContent, start, errorCode(err))
	if err != nil {
		t.logger.Error().Err(err).Int("books", len(books)).Msg("content training failed")
		return err
	}
	st := t.rec.Status()
	metrics.ModelSize.WithLabelValues(modelContent, "items").Set(float64(st.Items))
	t.logger.Info().Int("items", st.Items).Dur("elapsed", time.Since(start)).Msg("content model published")
	return nil
}

func (t *Trainer) trainCollaborative(ctx context.Context, interactions []core.Interaction) error {
	start := time.Now()
	err := t.rec.TrainCollaborative(ctx, interactions)
	metrics.RecordTraining(modelCollaborative, start, errorCode(err))
	if err != nil {
		t.logger.Error().Err(err).Int("interactions", len(interactions)).Msg("collaborative training failed")
		return err
	}
	st := t.rec.Status()
	metrics.ModelSize.WithLabelValues(modelCollaborative, "users").Set(float64(st.Users))
	metrics.ModelSize.WithLabelValues(modelCollaborative, "items").Set(float64(st.RatedItems))
	t.logger.Info().
		Int("users", st.Users).
		Int("items", st.RatedItems).
		Dur("elapsed", time.Since(start)).
		Msg("collaborative model published")
	return nil
}

// persist 保存当前模型；未配置模型存储时什么也不做。
func (t *Trainer) persist(ctx context.Context) (*modelstore.Version, error) {
	if t.rec.ModelStore() == nil {
		return nil, nil
	}
	v, err := t.rec.Save(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("save model artifacts failed")
		return nil, err
	}
	t.logger.Info().Str("version", v.ID).Msg("model artifacts saved")
	return v, nil
}

func (t *Trainer) fetchCatalog(ctx context.Context) ([]core.Book, error) {
	books, err := retry(ctx, t, "catalog", t.source.FetchCatalog)
	if err != nil {
		return nil, err
	}
	books, err = dsl.FilterBooks(t.catalogFilter, books)
	if err != nil {
		return nil, core.InvalidInputError(core.ModuleSource, "catalog filter: %v", err)
	}
	return books, nil
}

func (t *Trainer) fetchInteractions(ctx context.Context) ([]core.Interaction, error) {
	var since time.Time
	if t.cfg.Window > 0 {
		since = t.now().Add(-t.cfg.Window)
	}
	interactions, err := retry(ctx, t, "interactions", func(ctx context.Context) ([]core.Interaction, error) {
		return t.source.FetchInteractions(ctx, since)
	})
	if err != nil {
		return nil, err
	}
	interactions, err = dsl.FilterInteractions(t.interactionFilter, interactions)
	if err != nil {
		return nil, core.InvalidInputError(core.ModuleSource, "interaction filter: %v", err)
	}
	return interactions, nil
}

// retry 最多尝试 RetryAttempts 次；输入错误不重试。
func retry[T any](ctx context.Context, t *Trainer, kind string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= t.cfg.RetryAttempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		metrics.SourceFetchErrors.WithLabelValues(t.source.Name(), kind).Inc()
		if core.IsInvalidInput(err) || attempt == t.cfg.RetryAttempts {
			break
		}
		t.logger.Warn().Err(err).
			Str("kind", kind).
			Int("attempt", attempt).
			Dur("retry_in", t.cfg.RetryDelay).
			Msg("fetch failed, retrying")

		timer := time.NewTimer(t.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("fetch %s: %w", kind, ctx.Err())
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("fetch %s: %w", kind, err)
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if de := core.GetDomainError(err); de != nil {
		return de.Code
	}
	return "UNKNOWN"
}
