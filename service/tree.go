package service

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// TreeConfig 是监督树的重启策略
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig 与 suture 内置默认值一致
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree 分两层：model（定时训练、热加载）与 api（HTTP）。
// 训练失败不会影响 HTTP 层继续用已发布模型服务。
type Tree struct {
	root  *suture.Supervisor
	model *suture.Supervisor
	api   *suture.Supervisor
}

func NewTree(logger zerolog.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	child := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := child
	rootSpec.EventHook = eventHook(logger.With().Str("component", "supervisor").Logger())

	t := &Tree{
		root:  suture.New("bookrec", rootSpec),
		model: suture.New("model-layer", child),
		api:   suture.New("api-layer", child),
	}
	t.root.Add(t.model)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddModelService(svc suture.Service) suture.ServiceToken { return t.model.Add(svc) }

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken { return t.api.Add(svc) }

// Root 返回根监督者，调用方 Serve(ctx) 阻塞运行
func (t *Tree) Root() *suture.Supervisor { return t.root }

func eventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		logger.Warn().Fields(e.Map()).Msg(e.String())
	}
}
