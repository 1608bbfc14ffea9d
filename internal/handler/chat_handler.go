package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/service"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 来源由 CORS 中间件和 token 共同约束
		},
	}
)

// ChatHandler 负责问答接口，同时提供 REST 与 WebSocket 两种入口。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		jwtManager:  jwtManager,
	}
}

// ChatRequest 是一次提问的请求体。
type ChatRequest struct {
	NotebookID string `json:"notebookId"`
	Message    string `json:"message" binding:"required"`
}

// Chat 处理 REST 提问。生成失败时仍返回可展示的助手消息，状态码为 502。
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	if id := c.Param("id"); id != "" {
		req.NotebookID = id
	}

	resp, err := h.chatService.Answer(c.Request.Context(), req.NotebookID, userID, req.Message)
	if err != nil {
		if resp != nil && errors.Is(err, model.ErrGeneration) {
			log.Warnf("[Chat] 生成失败，返回错误消息: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": resp.Response, "data": resp})
			return
		}
		fail(c, err, "问答失败")
		return
	}
	success(c, resp)
}

// Handle 处理一个传入的 WebSocket 连接。每条消息为 {"notebookId","message"}，
// 服务端依次回发一条 answer 帧和一条 completion 帧。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("[Chat] WebSocket 连接已建立，用户: %d", claims.UserID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("[Chat] 从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil || req.Message == "" {
			writeFrame(conn, gin.H{"type": "error", "error": "消息格式无效"})
			continue
		}

		resp, err := h.chatService.Answer(c.Request.Context(), req.NotebookID, claims.UserID, req.Message)
		switch {
		case err == nil:
			writeFrame(conn, gin.H{"type": "answer", "data": resp})
		case resp != nil:
			log.Errorf("[Chat] 生成失败: %v", err)
			writeFrame(conn, gin.H{"type": "answer", "data": resp, "error": resp.Response})
		default:
			log.Errorf("[Chat] 处理消息失败: %v", err)
			writeFrame(conn, gin.H{"type": "error", "error": errorText(err)})
		}
		writeFrame(conn, gin.H{
			"type":      "completion",
			"status":    "finished",
			"message":   "响应已完成",
			"timestamp": time.Now().UnixMilli(),
			"date":      time.Now().Format("2006-01-02T15:04:05"),
		})
	}
}

func writeFrame(conn *websocket.Conn, frame gin.H) {
	b, _ := json.Marshal(frame)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("[Chat] 写入 WebSocket 失败: %v", err)
	}
}

// errorText 返回可以展示给客户端的错误文本。
func errorText(err error) string {
	if statusFor(err) >= http.StatusInternalServerError {
		return "AI服务暂时不可用，请稍后重试"
	}
	return err.Error()
}
