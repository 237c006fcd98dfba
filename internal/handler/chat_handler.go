// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/model"
	"ragchat-go/internal/service"
	"ragchat-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求：阻塞式 JSON 接口与 WebSocket 流式接口。
type ChatHandler struct {
	chatService service.ChatService
	// 每连接停止标志
	stopFlags sync.Map // key: session pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理 POST /chat 请求，阻塞等待完整回答。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ChatHandler] 请求体解析失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.chatService.Answer(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[ChatHandler] 问答处理失败: %v", err)
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// streamCommand 是 WebSocket 上行消息的结构。
type streamCommand struct {
	Type           string `json:"type,omitempty"` // "stop" 表示中断当前流
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// HandleStream 处理一个传入的 WebSocket 连接。
// 客户端发送 {"message":"...","conversation_id":"..."}；服务端以
// {"chunk":"..."} 分块下发，最后发送 completion 通知。
func (h *ChatHandler) HandleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	// 连接结束时清理停止标志，防止标志残留到后续连接
	defer h.stopFlags.Delete(sessionKey(conn))

	log.Infof("WebSocket 连接已建立, client: %s", c.ClientIP())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var cmd streamCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			// 非 JSON 消息视为裸文本提问
			cmd = streamCommand{Message: string(message)}
		}

		// 停止指令：置位标志，由写入拦截器丢弃后续分块
		if cmd.Type == "stop" {
			h.stopFlags.Store(sessionKey(conn), true)
			resp := map[string]interface{}{
				"type":      "stop",
				"status":    "stopped",
				"timestamp": time.Now().UnixMilli(),
			}
			b, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}

		// 清除旧标志
		h.stopFlags.Delete(sessionKey(conn))
		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(sessionKey(conn))
			return ok && v.(bool)
		}

		req := model.ChatRequest{Message: cmd.Message, ConversationID: cmd.ConversationID}
		if err := h.chatService.StreamAnswer(c.Request.Context(), req, conn, shouldStop); err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp := map[string]interface{}{
				"type":   "error",
				"status": apperr.HTTPStatus(err),
				"error":  err.Error(),
			}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
