package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/model"
	"ragchat-go/internal/service"
	"ragchat-go/pkg/log"
)

// DocumentHandler 负责文档入库与管理相关的接口。
type DocumentHandler struct {
	ingestService service.IngestService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(ingestService service.IngestService) *DocumentHandler {
	return &DocumentHandler{ingestService: ingestService}
}

type ingestRequest struct {
	Documents []model.Document `json:"documents"`
}

// Ingest 处理 POST /documents：同步入库一批文档。
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Documents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "documents is empty"})
		return
	}

	count, err := h.ingestService.Ingest(c.Request.Context(), req.Documents)
	if err != nil {
		log.Errorf("[DocumentHandler] 入库失败, 已入库 %d 篇: %v", count, err)
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error(), "ingested": count})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ingested": count})
}

// IngestAsync 处理 POST /documents/async：投递异步入库任务。
func (h *DocumentHandler) IngestAsync(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	batchID, err := h.ingestService.IngestAsync(req.Documents)
	if err != nil {
		log.Errorf("[DocumentHandler] 异步入库投递失败: %v", err)
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "queued": len(req.Documents)})
}

// List 处理 GET /documents：返回文档台账。
func (h *DocumentHandler) List(c *gin.Context) {
	records, err := h.ingestService.List()
	if err != nil {
		log.Errorf("[DocumentHandler] 查询文档台账失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": records})
}

// Delete 处理 DELETE /documents/:id：删除一篇文档。
func (h *DocumentHandler) Delete(c *gin.Context) {
	documentID := c.Param("id")
	if err := h.ingestService.Delete(c.Request.Context(), documentID); err != nil {
		log.Errorf("[DocumentHandler] 删除文档失败, id: %s, err: %v", documentID, err)
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": documentID})
}
