// Package api 提供推荐服务的 HTTP 接口（chi 路由）。
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/config"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/logging"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/recommender"
	"github.com/rushteam/bookrec/trainer"
)

// maxBodyBytes 限制训练请求体大小
const maxBodyBytes = 64 << 20

// Server 持有 HTTP 处理器的依赖
type Server struct {
	rec      *recommender.Recommender
	trainer  *trainer.Trainer
	cfg      config.ServerConfig
	maxK     int
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewServer 创建 Server。maxK<=0 表示不限制单次请求数量。
func NewServer(rec *recommender.Recommender, tr *trainer.Trainer, cfg config.ServerConfig, maxK int, logger zerolog.Logger) *Server {
	return &Server{
		rec:      rec,
		trainer:  tr,
		cfg:      cfg,
		maxK:     maxK,
		logger:   logging.Component(logger, "api"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router 返回完整路由
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(accessLog(s.logger))
	r.Use(corsHandler(s.cfg.CORSOrigins))

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Handle("/metrics", promhttp.Handler())

	r.With(rateLimit(s.cfg.RateLimit)).Post("/recommendations", s.recommend)

	r.Route("/train", func(r chi.Router) {
		r.Post("/content", s.trainContent)
		r.Post("/collaborative", s.trainCollaborative)
	})

	r.Get("/blocked", s.getBlocked)
	r.Put("/blocked", s.putBlocked)
	return r
}

// HTTPServer 按配置创建 http.Server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.Status())
}

type recommendRequest struct {
	UserID string `json:"user_id" validate:"required"`
	BookID string `json:"book_id"`
	// NRecommendations 为 0 时使用默认数量
	NRecommendations int `json:"n_recommendations" validate:"gte=0"`
}

type recommendResponse struct {
	Recommendations []recommender.Recommendation `json:"recommendations"`
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req recommendRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	mode := "collaborative"
	if req.BookID != "" {
		mode = "hybrid"
	}
	if err := s.validate.Struct(req); err != nil {
		metrics.RecordRecommend(mode, "invalid", start)
		s.fail(w, r, err)
		return
	}
	if s.maxK > 0 && req.NRecommendations > s.maxK {
		metrics.RecordRecommend(mode, "invalid", start)
		s.fail(w, r, core.InvalidInputError(core.ModuleRecommender, "n_recommendations must be at most %d", s.maxK))
		return
	}

	recs, err := s.rec.Recommend(r.Context(), req.UserID, req.BookID, req.NRecommendations)
	if err != nil {
		metrics.RecordRecommend(mode, resultLabel(err), start)
		s.fail(w, r, err)
		return
	}
	metrics.RecordRecommend(mode, "ok", start)
	if recs == nil {
		recs = []recommender.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recommendResponse{Recommendations: recs})
}

type trainContentRequest struct {
	Books []core.Book `json:"books"`
}

type trainCollaborativeRequest struct {
	Interactions []core.Interaction `json:"interactions"`
}

type trainResponse struct {
	Status string `json:"status"`
	*trainer.Result
}

// trainContent 请求体可省略，此时从配置的数据源拉取目录
func (s *Server) trainContent(w http.ResponseWriter, r *http.Request) {
	var req trainContentRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.trainer.RunContent(r.Context(), req.Books)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trainResponse{Status: "trained", Result: res})
}

// trainCollaborative 请求体可省略，此时从配置的数据源拉取时间窗口内的评分
func (s *Server) trainCollaborative(w http.ResponseWriter, r *http.Request) {
	var req trainCollaborativeRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.trainer.RunCollaborative(r.Context(), req.Interactions)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trainResponse{Status: "trained", Result: res})
}

type blockedBody struct {
	Items []string `json:"items"`
}

func (s *Server) getBlocked(w http.ResponseWriter, r *http.Request) {
	ids, err := s.rec.Blocked(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, blockedBody{Items: ids})
}

func (s *Server) putBlocked(w http.ResponseWriter, r *http.Request) {
	var req blockedBody
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.rec.SetBlocked(r.Context(), req.Items); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		reqLogger := logging.Ctx(r.Context(), s.logger)
		reqLogger.Error().Err(err).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return core.InvalidInputError(core.ModuleRecommender, "decode request body: %v", err)
	}
	return nil
}

// decodeOptionalBody 空请求体视为零值
func decodeOptionalBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return core.NewIOError(core.ModuleRecommender, "read request body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.InvalidInputError(core.ModuleRecommender, "decode request body: %v", err)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case core.IsNotFound(err):
		return "not_found"
	case core.IsModelNotReady(err):
		return "not_ready"
	case core.IsInvalidInput(err):
		return "invalid"
	default:
		return "error"
	}
}

// String 用于 suture 日志
func (s *Server) String() string {
	return fmt.Sprintf("api(%s)", s.cfg.Addr)
}
