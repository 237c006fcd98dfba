package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"context"

	"ragchat-go/internal/model"
	"ragchat-go/pkg/log"
	"ragchat-go/pkg/vectorstore"
)

// HealthHandler 负责健康检查接口。
type HealthHandler struct {
	store         vectorstore.Store
	llmConfigured bool
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(store vectorstore.Store, llmConfigured bool) *HealthHandler {
	return &HealthHandler{store: store, llmConfigured: llmConfigured}
}

// Check 处理 GET /health：探测向量库连通性与 LLM 配置完备性。
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	storeConnected := true
	if err := h.store.Ping(ctx); err != nil {
		log.Warnf("[HealthHandler] 向量库连通性检查失败: %v", err)
		storeConnected = false
	}

	status := "healthy"
	if !storeConnected || !h.llmConfigured {
		status = "unhealthy"
	}

	c.JSON(http.StatusOK, model.HealthResponse{
		Status:               status,
		VectorStoreConnected: storeConnected,
		LLMConfigured:        h.llmConfigured,
	})
}
