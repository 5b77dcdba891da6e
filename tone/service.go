// Package tone orchestrates tone transformation: request validation,
// cache-first lookup with scope fallback, upstream invocation on miss,
// and write-back of fresh results.
package tone

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/toneflow/cache"
	"github.com/BaSui01/toneflow/providers"
	"github.com/BaSui01/toneflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🎯 语气改写编排服务
// =============================================================================

// Recorder 编排过程的指标回调
type Recorder interface {
	RecordCacheHit(scope string)
	RecordCacheMiss()
	RecordCacheFailOpen()
	RecordUpstream(duration time.Duration, totalTokens int)
}

// Options 编排服务配置
type Options struct {
	// Model 上游模型标识，仅用于响应元数据与缓存条目
	Model string
	// TTL 新缓存条目的存活时长
	TTL time.Duration
	// MaxTokens 上游补全的输出上限
	MaxTokens int
	// MaxInputTokens 输入 token 预算；0 表示不限制
	MaxInputTokens int
	// BatchConcurrency 批量改写的并发上限
	BatchConcurrency int
	// Recorder 可选的指标回调
	Recorder Recorder
}

// Service 语气改写编排服务
type Service struct {
	store    cache.Store
	provider providers.Provider
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewService 创建编排服务
func NewService(store cache.Store, provider providers.Provider, opts Options, logger *zap.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		provider: provider,
		opts:     opts,
		logger:   logger.With(zap.String("component", "tone_service")),
		now:      time.Now,
	}
}

// Shift 执行一次语气改写：缓存优先，未命中调上游并回写
func (s *Service) Shift(ctx context.Context, req *ShiftRequest) (*ShiftResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	key := cache.DeriveKey(req.Text, req.Style, req.Context)

	if req.useCache() {
		if resp, ok := s.lookupCached(ctx, key, req); ok {
			return resp, nil
		}
	}

	resp, entry, err := s.invokeUpstream(ctx, key, req)
	if err != nil {
		return nil, err
	}

	// 上游失败不缓存；回写失败只降级为日志，不影响本次响应
	if req.useCache() {
		if err := s.store.Put(ctx, entry); err != nil {
			s.logger.Warn("cache write-back failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return resp, nil
}

func (s *Service) validate(req *ShiftRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return types.NewError(types.ErrInvalidRequest, "text is required").WithHTTPStatus(http.StatusBadRequest)
	}
	if strings.TrimSpace(req.Style) == "" {
		return types.NewError(types.ErrInvalidRequest, "style is required").WithHTTPStatus(http.StatusBadRequest)
	}
	if t := req.temperature(); t < 0 || t > 1 {
		return types.NewError(types.ErrInvalidRequest, "temperature must be between 0.0 and 1.0").WithHTTPStatus(http.StatusBadRequest)
	}
	if s.opts.MaxInputTokens > 0 {
		if n := countTokens(req.Text) + countTokens(req.Context); n > s.opts.MaxInputTokens {
			return types.NewError(types.ErrContextTooLong, "input exceeds the token budget").WithHTTPStatus(http.StatusBadRequest)
		}
	}
	return nil
}

// lookupCached 查缓存；命中返回响应，未命中或存储故障（fail-open）返回 false
func (s *Service) lookupCached(ctx context.Context, key string, req *ShiftRequest) (*ShiftResponse, bool) {
	entry, err := s.store.Lookup(ctx, key, req.IdentityID)
	if err != nil {
		if cache.IsUnavailable(err) {
			// 存储故障按未命中处理，请求继续走上游
			s.logger.Warn("cache unavailable, falling through to upstream",
				zap.String("key", key),
				zap.Error(err))
			if s.opts.Recorder != nil {
				s.opts.Recorder.RecordCacheFailOpen()
			}
			return nil, false
		}
		if s.opts.Recorder != nil {
			s.opts.Recorder.RecordCacheMiss()
		}
		return nil, false
	}

	// 命中计数必须针对条目实际归属的作用域自增
	hitCount, err := s.store.RecordHit(ctx, entry.Key, entry.Owner)
	if err != nil {
		// 计数失败不影响命中结果
		s.logger.Warn("hit count update failed",
			zap.String("key", key),
			zap.Error(err))
		hitCount = entry.HitCount + 1
	}

	scope := "global"
	if entry.Owner != cache.GlobalOwner {
		scope = "owner"
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordCacheHit(scope)
	}

	s.logger.Debug("cache hit",
		zap.String("key", key),
		zap.String("scope", scope),
		zap.Int64("hit_count", hitCount))

	return &ShiftResponse{
		Success:          true,
		OriginalText:     req.Text,
		TransformedText:  entry.TransformedText,
		Style:            req.Style,
		StyleDescription: StyleDescription(req.Style),
		Model:            entry.Model,
		Cached:           true,
		CacheHitCount:    hitCount,
		Usage: &providers.ChatUsage{
			PromptTokens:     entry.PromptTokens,
			CompletionTokens: entry.CompletionTokens,
			TotalTokens:      entry.TotalTokens,
		},
	}, true
}

func (s *Service) invokeUpstream(ctx context.Context, key string, req *ShiftRequest) (*ShiftResponse, *cache.Entry, error) {
	styleDescription := StyleDescription(req.Style)

	chatReq := &providers.ChatRequest{
		Model: s.opts.Model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: buildShiftSystemPrompt(styleDescription, req.preserveMeaning(), req.Context)},
			{Role: providers.RoleUser, Content: buildShiftUserPrompt(req.Text)},
		},
		MaxTokens:   s.opts.MaxTokens,
		Temperature: req.temperature(),
		TopP:        1,
	}

	start := s.now()
	chatResp, err := s.provider.Completion(ctx, chatReq)
	if err != nil {
		s.logger.Warn("upstream completion failed",
			zap.String("style", req.Style),
			zap.Error(err))
		return nil, nil, err
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordUpstream(s.now().Sub(start), chatResp.Usage.TotalTokens)
	}

	now := s.now().UTC()
	entry := &cache.Entry{
		Key:              key,
		Owner:            req.IdentityID,
		InputText:        req.Text,
		TargetStyle:      req.Style,
		Context:          req.Context,
		TransformedText:  chatResp.Content,
		Model:            chatResp.Model,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
		TotalTokens:      chatResp.Usage.TotalTokens,
		CreatedAt:        now,
		LastAccessedAt:   now,
		ExpiresAt:        now.Add(s.opts.TTL),
	}

	resp := &ShiftResponse{
		Success:          true,
		OriginalText:     req.Text,
		TransformedText:  chatResp.Content,
		Style:            req.Style,
		StyleDescription: styleDescription,
		Model:            chatResp.Model,
		Cached:           false,
		Usage:            &chatResp.Usage,
	}
	return resp, entry, nil
}

// BatchShift 并发改写多段文本。单条失败不终止整批，
// 失败条目以 Success=false 与错误信息占位。
func (s *Service) BatchShift(ctx context.Context, req *BatchShiftRequest) ([]*ShiftResponse, error) {
	if len(req.Texts) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "texts is required").WithHTTPStatus(http.StatusBadRequest)
	}
	if strings.TrimSpace(req.Style) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "style is required").WithHTTPStatus(http.StatusBadRequest)
	}

	results := make([]*ShiftResponse, len(req.Texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchConcurrency)

	for i, text := range req.Texts {
		g.Go(func() error {
			resp, err := s.Shift(gctx, &ShiftRequest{
				Text:       text,
				Style:      req.Style,
				Context:    req.Context,
				IdentityID: req.IdentityID,
			})
			if err != nil {
				results[i] = &ShiftResponse{
					Success:      false,
					OriginalText: text,
					Style:        req.Style,
					Error:        err.Error(),
				}
				return nil
			}
			results[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SuggestImprovements 分析文本语气并给出改进建议。不经过缓存。
func (s *Service) SuggestImprovements(ctx context.Context, req *SuggestRequest) (*SuggestResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "text is required").WithHTTPStatus(http.StatusBadRequest)
	}
	if strings.TrimSpace(req.CurrentTone) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "current_tone is required").WithHTTPStatus(http.StatusBadRequest)
	}

	chatResp, err := s.provider.Completion(ctx, &providers.ChatRequest{
		Model: s.opts.Model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: buildSuggestSystemPrompt(req.CurrentTone, req.TargetAudience)},
			{Role: providers.RoleUser, Content: req.Text},
		},
		MaxTokens:   s.opts.MaxTokens,
		Temperature: 0.5,
	})
	if err != nil {
		return nil, err
	}

	return &SuggestResponse{
		Success:        true,
		OriginalText:   req.Text,
		Analysis:       chatResp.Content,
		CurrentTone:    req.CurrentTone,
		TargetAudience: req.TargetAudience,
	}, nil
}

// Stats 返回调用者可见作用域的缓存统计
func (s *Service) Stats(ctx context.Context, identityID string) (cache.Stats, error) {
	return s.store.Stats(ctx, identityID)
}

// ClearCache 清除该身份的全部缓存条目
func (s *Service) ClearCache(ctx context.Context, identityID string) (int64, error) {
	if identityID == cache.GlobalOwner {
		return 0, types.NewError(types.ErrInvalidRequest, "clearing the global cache scope is not allowed").WithHTTPStatus(http.StatusBadRequest)
	}
	return s.store.ClearForIdentity(ctx, identityID)
}

// SweepExpired 主动清理过期条目
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.SweepExpired(ctx)
}
