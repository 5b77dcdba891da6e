package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/toneflow/internal/ctxkeys"
	"github.com/BaSui01/toneflow/tone"
	"github.com/BaSui01/toneflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 语气改写 Handler
// =============================================================================

// ToneHandler 语气改写处理器
type ToneHandler struct {
	service *tone.Service
	logger  *zap.Logger
}

// NewToneHandler 创建语气改写处理器
func NewToneHandler(service *tone.Service, logger *zap.Logger) *ToneHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToneHandler{
		service: service,
		logger:  logger.With(zap.String("component", "tone_handler")),
	}
}

// RegisterRoutes 注册全部路由
func (h *ToneHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/tone/shift", h.HandleShift)
	mux.HandleFunc("POST /api/v1/tone/quick-shift", h.HandleQuickShift)
	mux.HandleFunc("POST /api/v1/tone/batch-shift", h.HandleBatchShift)
	mux.HandleFunc("POST /api/v1/tone/suggest-improvements", h.HandleSuggestImprovements)
	mux.HandleFunc("GET /api/v1/tone/tones", h.HandleListTones)
	mux.HandleFunc("GET /api/v1/tone/cache/stats", h.HandleCacheStats)
	mux.HandleFunc("DELETE /api/v1/tone/cache/clear", h.HandleCacheClear)
	mux.HandleFunc("POST /api/v1/tone/cache/cleanup", h.HandleCacheCleanup)
}

// HandleShift 处理完整的语气改写请求
func (h *ToneHandler) HandleShift(w http.ResponseWriter, r *http.Request) {
	var req tone.ShiftRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.IdentityID = ctxkeys.IdentityID(r.Context())

	resp, err := h.service.Shift(r.Context(), &req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// quickShiftRequest 轻量改写请求：只接受文本与语气
type quickShiftRequest struct {
	Text string `json:"text"`
	Tone string `json:"tone"`
}

// HandleQuickShift 处理轻量改写请求（插件等低延迟调用方）
func (h *ToneHandler) HandleQuickShift(w http.ResponseWriter, r *http.Request) {
	var req quickShiftRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	resp, err := h.service.Shift(r.Context(), &tone.ShiftRequest{
		Text:       req.Text,
		Style:      req.Tone,
		IdentityID: ctxkeys.IdentityID(r.Context()),
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":          resp.Success,
		"transformed_text": resp.TransformedText,
		"cached":           resp.Cached,
	})
}

// HandleBatchShift 处理批量改写请求
func (h *ToneHandler) HandleBatchShift(w http.ResponseWriter, r *http.Request) {
	var req tone.BatchShiftRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.IdentityID = ctxkeys.IdentityID(r.Context())

	results, err := h.service.BatchShift(r.Context(), &req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(results),
		"results": results,
	})
}

// HandleSuggestImprovements 处理语气分析请求
func (h *ToneHandler) HandleSuggestImprovements(w http.ResponseWriter, r *http.Request) {
	var req tone.SuggestRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	resp, err := h.service.SuggestImprovements(r.Context(), &req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleListTones 返回全部内置语气预设
func (h *ToneHandler) HandleListTones(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{
		"tones": tone.AvailableStyles(),
		"names": tone.StyleNames(),
	})
}

// HandleCacheStats 返回调用者可见作用域的缓存统计
func (h *ToneHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	identityID := ctxkeys.IdentityID(r.Context())

	stats, err := h.service.Stats(r.Context(), identityID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStoreUnavailable, "failed to read cache stats").WithCause(err), h.logger)
		return
	}

	scope := "global"
	if identityID != "" {
		scope = "owner"
	}
	WriteSuccess(w, map[string]any{
		"scope": scope,
		"stats": stats,
	})
}

// HandleCacheClear 清除调用者身份的全部缓存条目。
// 需要已认证身份；匿名调用被拒绝，全局条目永不受影响。
func (h *ToneHandler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	identityID := ctxkeys.IdentityID(r.Context())
	if strings.TrimSpace(identityID) == "" {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "cache clear requires an authenticated identity", h.logger)
		return
	}

	removed, err := h.service.ClearCache(r.Context(), identityID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]any{
		"deleted_count": removed,
	})
}

// HandleCacheCleanup 主动清理过期条目
func (h *ToneHandler) HandleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.SweepExpired(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrStoreUnavailable, "failed to sweep expired entries").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, map[string]any{
		"deleted_count": removed,
	})
}
