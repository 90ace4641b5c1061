package handlers

import (
	"net/http"

	"github.com/wyxpro/CubeAI-FlowDecompose/api"
	"github.com/wyxpro/CubeAI-FlowDecompose/terminology"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📖 镜头术语 Handler
// =============================================================================

// TerminologyHandler 提供镜头术语表查询
type TerminologyHandler struct {
	catalogue *terminology.Catalogue
	logger    *zap.Logger
}

// NewTerminologyHandler 创建术语处理器；catalogue 为 nil 时使用内置术语表
func NewTerminologyHandler(catalogue *terminology.Catalogue, logger *zap.Logger) *TerminologyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalogue == nil {
		catalogue = terminology.Default()
	}
	return &TerminologyHandler{
		catalogue: catalogue,
		logger:    logger.With(zap.String("component", "terminology_handler")),
	}
}

// HandleShots 处理 GET /v1/terminology/shots，按分组返回完整术语
func (h *TerminologyHandler) HandleShots(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.catalogue.ByGroup())
}

// HandleList 处理 GET /v1/terminology/shots/list，只返回各分组的 key
func (h *TerminologyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.catalogue.Keys())
}

// HandleDetail 处理 GET /v1/terminology/shots/{key}
func (h *TerminologyHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	term, group, ok := h.catalogue.Lookup(key)
	if !ok {
		WriteError(w, r, types.NewError(types.ErrNotFound, "unknown shot term: "+key), h.logger)
		return
	}
	WriteSuccess(w, r, api.ShotDetail{
		Key:         key,
		Group:       string(group),
		Name:        term.Name,
		NameEn:      term.NameEn,
		Abbr:        term.Abbr,
		Description: term.Description,
	})
}

// HandleTranslate 处理 GET /v1/terminology/shots/translate/{key}；未知 key 原样返回
func (h *TerminologyHandler) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	WriteSuccess(w, r, api.ShotTranslation{Key: key, ChineseName: h.catalogue.ChineseName(key)})
}
