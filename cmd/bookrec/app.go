package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/config"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/logging"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/modelstore"
	"github.com/rushteam/bookrec/pipeline"
	"github.com/rushteam/bookrec/recommender"
	"github.com/rushteam/bookrec/trainer"
)

// app 持有按配置构建好的组件
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	source  core.DataSource
	rec     *recommender.Recommender
	trainer *trainer.Trainer
}

func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	st, err := config.BuildStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	opts := []recommender.Option{
		recommender.WithModelStore(modelstore.New(st,
			modelstore.WithPrefix(cfg.Store.Prefix),
			modelstore.WithKeepVersions(cfg.Store.KeepVersions),
		)),
		recommender.WithObserver(func(n pipeline.Node, elapsed time.Duration, _ int, err error) {
			metrics.ObserveNode(n.Name(), string(n.Kind()), elapsed, err)
		}),
	}
	if cfg.Store.BlacklistKey != "" {
		opts = append(opts, recommender.WithBlacklistStore(st, cfg.Store.BlacklistKey))
	}
	rec := recommender.New(recommender.Config{
		KNeighbors:   cfg.Model.KNeighbors,
		StopWords:    cfg.Model.StopWordList(),
		DefaultK:     cfg.Model.DefaultK,
		NeighborMean: cfg.Model.NeighborMean,
		Workers:      cfg.Model.Workers,
		BlockedItems: cfg.Model.BlockedItems,
	}, opts...)

	src, err := config.BuildSource(cfg.Source)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}

	tr, err := trainer.New(rec, src, cfg.Training, logger)
	if err != nil {
		_ = src.Close()
		_ = rec.Close()
		return nil, err
	}

	logger.Debug().
		Str("store", st.Name()).
		Str("source", src.Name()).
		Msg("components built")
	return &app{cfg: cfg, logger: logger, source: src, rec: rec, trainer: tr}, nil
}

func (a *app) Close() error {
	return errors.Join(a.source.Close(), a.rec.Close())
}

// describe 用于启动日志
func (a *app) describe() string {
	return fmt.Sprintf("store=%s source=%s", a.cfg.Store.Backend, a.cfg.Source.Type)
}
