package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/config"
	"ragchat-go/internal/model"
	"ragchat-go/internal/repository"
	"ragchat-go/pkg/embedding"
	"ragchat-go/pkg/llm"
	"ragchat-go/pkg/log"
	"ragchat-go/pkg/vectorstore"
)

// ChatService 定义了问答编排的接口：一次请求完成
// 向量化 → 检索 → 上下文组装 → 生成 的完整流水线。
type ChatService interface {
	// Answer 处理一次完整的问答请求，阻塞等待生成结果。
	Answer(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	// StreamAnswer 执行同样的流水线，但将生成结果流式写入 WebSocket。
	StreamAnswer(ctx context.Context, req model.ChatRequest, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	embeddingClient  embedding.Client
	store            vectorstore.Store
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	cfg              config.RAGConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	embeddingClient embedding.Client,
	store vectorstore.Store,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	cfg config.RAGConfig,
) ChatService {
	return &chatService{
		embeddingClient:  embeddingClient,
		store:            store,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		cfg:              cfg,
	}
}

// retrieval 汇总一轮检索的产物，供阻塞与流式两条路径共用。
type retrieval struct {
	messages  []llm.Message
	sourceIDs []string
	metadata  *model.SearchMetadata
}

// Answer 协调完整的 RAG 流程并返回打包好的响应。
// 编排层自身不做任何重试：重试由各客户端在内部完成。
func (s *chatService) Answer(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", apperr.ErrInvalidInput)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = s.conversationRepo.NewConversationID()
	}

	ret, err := s.retrieve(ctx, message, conversationID)
	if err != nil {
		return nil, err
	}

	answer, err := s.llmClient.Complete(ctx, ret.messages, nil)
	if err != nil {
		return nil, err
	}

	s.saveTurn(conversationID, message, answer)

	return &model.ChatResponse{
		Response:       answer,
		ConversationID: conversationID,
		Sources:        ret.sourceIDs,
		SearchMetadata: ret.metadata,
	}, nil
}

// StreamAnswer 协调 RAG 流程并将 LLM 响应流式传输到 WebSocket。
func (s *chatService) StreamAnswer(ctx context.Context, req model.ChatRequest, ws *websocket.Conn, shouldStop func() bool) error {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return fmt.Errorf("%w: message is empty", apperr.ErrInvalidInput)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = s.conversationRepo.NewConversationID()
	}

	ret, err := s.retrieve(ctx, message, conversationID)
	if err != nil {
		return err
	}

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	if err := s.llmClient.StreamChatMessages(ctx, ret.messages, nil, interceptor); err != nil {
		return err
	}

	sendCompletion(ws, conversationID, ret.sourceIDs)

	if fullAnswer := answerBuilder.String(); len(fullAnswer) > 0 {
		s.saveTurn(conversationID, message, fullAnswer)
	}
	return nil
}

// retrieve 执行步骤 2-5 的前半部分：向量化、检索、阈值过滤、上下文组装、
// 历史加载与消息组装。检索为空不是错误，此时带"无检索结果"标记继续生成。
func (s *chatService) retrieve(ctx context.Context, message, conversationID string) (*retrieval, error) {
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	hits, err := s.store.Search(ctx, queryVector, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	// 过滤低分命中，避免无关内容混入上下文
	filtered := make([]model.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= s.cfg.ScoreThreshold {
			filtered = append(filtered, hit)
		} else {
			log.Infof("[ChatService] 过滤低分命中, document_id: %s, score: %.3f", hit.DocumentID, hit.Score)
		}
	}
	log.Infof("[ChatService] 检索到 %d 条，过滤后剩 %d 条 (threshold=%.2f)", len(hits), len(filtered), s.cfg.ScoreThreshold)

	contextText, usedIDs := assembleContext(filtered, s.cfg.MaxContextChars)
	systemMsg := s.buildSystemMessage(contextText)

	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		// 历史不可用时降级为单轮问答，不阻断本次请求
		log.Errorf("[ChatService] 加载对话历史失败: %v", err)
		history = []model.ChatMessage{}
	}

	messages := composeMessages(systemMsg, history, message)

	metadata := buildSearchMetadata(hits, filtered, s.cfg.ScoreThreshold)

	return &retrieval{
		messages:  messages,
		sourceIDs: dedupeOrdered(usedIDs),
		metadata:  metadata,
	}, nil
}

// buildSystemMessage 构造 system 消息：规则 + 包裹符 + 上下文。
// 上下文为空时显式写入"无检索结果"标记，而不是省略整段，
// 避免模型把缺失的上下文脑补出来。
func (s *chatService) buildSystemMessage(contextText string) string {
	rules := s.cfg.Prompt.Rules
	if rules == "" {
		rules = "You are a helpful assistant. Use the reference material between the markers to answer the user's question. If no reference material is available, answer from your general knowledge."
	}
	refStart := s.cfg.Prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.cfg.Prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
		sys.WriteString("\n")
	} else {
		noRes := s.cfg.Prompt.NoResultText
		if noRes == "" {
			noRes = "(no relevant context was retrieved for this question)"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

func composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userInput})
	return msgs
}

func buildSearchMetadata(all, filtered []model.SearchHit, threshold float64) *model.SearchMetadata {
	metadata := &model.SearchMetadata{
		DocumentsFound:         len(filtered),
		TotalDocumentsSearched: len(all),
		SearchSuccessful:       len(filtered) > 0,
		SimilarityThreshold:    threshold,
	}
	if len(filtered) > 0 {
		var sum float64
		for _, hit := range filtered {
			sum += hit.Score
			if hit.Score > metadata.HighestScore {
				metadata.HighestScore = hit.Score
			}
		}
		metadata.AvgScore = sum / float64(len(filtered))
	} else {
		metadata.Reason = fmt.Sprintf("no documents met similarity threshold (%.2f)", threshold)
	}
	return metadata
}

// saveTurn 将一轮问答写入对话历史。
// 使用后台上下文：即使原始请求被取消，也希望保存成功生成的答案。
// 保存失败只记录日志，不影响已经成功的响应。
func (s *chatService) saveTurn(conversationID, question, answer string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.conversationRepo.AppendTurn(ctx, conversationID, question, answer, s.cfg.HistoryLimit); err != nil {
		log.Errorf("[ChatService] 保存对话历史失败: %v", err)
	}
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON，附带本轮引用的文档 id。
func sendCompletion(ws *websocket.Conn, conversationID string, sources []string) {
	if sources == nil {
		sources = []string{}
	}
	notif := map[string]interface{}{
		"type":            "completion",
		"status":          "finished",
		"conversation_id": conversationID,
		"sources":         sources,
		"timestamp":       time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
