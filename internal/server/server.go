// Package server 对外提供看板的 HTTP 与 WebSocket 接口。
//
//	GET  /api/pairs  交易对列表与当前选中交易对
//	GET  /api/state  当前看板状态
//	GET  /api/stats  订阅与时延统计
//	POST /api/pair   切换交易对 {"symbol": "ETHUSDT"}
//	GET  /ws         状态推送
//	GET  /metrics    Prometheus 指标
//	GET  /healthz    健康检查
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"orderbook-dashboard/internal/config"
	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/metrics"
	"orderbook-dashboard/internal/session"
	"orderbook-dashboard/internal/util/timeutil"
	"orderbook-dashboard/internal/view"
)

// Controller 订阅控制器，由 session.Manager 实现
type Controller interface {
	Switch(ctx context.Context, symbol string) (model.TradingPair, error)
	State() *store.State
	Stats() session.Stats
}

// PairLister 交易对列表，由 metadata.Catalog 实现
type PairLister interface {
	Pairs() []model.TradingPair
}

// PairView 交易对
type PairView struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}

// PairsResponse GET /api/pairs 响应
type PairsResponse struct {
	Pairs    []PairView `json:"pairs"`
	Selected string     `json:"selected"`
}

// SwitchRequest POST /api/pair 请求
type SwitchRequest struct {
	Symbol string `json:"symbol"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server HTTP 服务
type Server struct {
	cfg        *config.ServerConfig
	ctrl       Controller
	pairs      PairLister
	hub        *Hub
	prom       *metrics.Metrics
	logger     *zap.Logger
	httpServer *http.Server
}

// New 创建 HTTP 服务
func New(cfg *config.ServerConfig, ctrl Controller, pairs PairLister, hub *Hub, prom *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		pairs:  pairs,
		hub:    hub,
		prom:   prom,
		logger: logger.Named("http"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pairs", s.handlePairs)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/pair", s.handleSwitch)
	mux.HandleFunc("GET /ws", s.hub.HandleConnection)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.prom != nil {
		mux.Handle("GET /metrics", s.prom.Handler())
	}
	return mux
}

// ListenAndServe 启动监听，正常关闭时返回 nil
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP 服务启动", zap.String("addr", s.cfg.ListenAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePairs(w http.ResponseWriter, _ *http.Request) {
	pairs := s.pairs.Pairs()
	resp := PairsResponse{
		Pairs:    make([]PairView, 0, len(pairs)),
		Selected: s.ctrl.State().Pair.Symbol,
	}
	for _, p := range pairs {
		resp.Pairs = append(resp.Pairs, PairView{Symbol: p.Symbol, DisplayName: p.DisplayName})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.FromState(s.ctrl.State(), timeutil.NowMs()))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "请求格式错误"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), switchTimeout)
	defer cancel()

	pair, err := s.ctrl.Switch(ctx, req.Symbol)
	switch {
	case errors.Is(err, session.ErrUnknownPair):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		s.logger.Warn("切换交易对失败", zap.String("symbol", req.Symbol), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, PairView{Symbol: pair.Symbol, DisplayName: pair.DisplayName})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
