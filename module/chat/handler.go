package chat

import (
	"net/http"

	"PPDirect/middleware"
	"PPDirect/middleware/security"
	"PPDirect/module/chat/message"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
)

type sendReq struct {
	Message string `json:"message"`
}

// Handler 会话与消息接口，全部需要登录
type Handler struct {
	svc *message.Service
}

func NewHandler(svc *message.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r *middleware.Router) {
	auth := middleware.RouteOpt{IsAuth: true}
	r.GET("/conversations", middleware.E(h.listConversations), auth)
	r.POST("/conversations/:id/messages", middleware.E(h.send), auth) // :id 为接收方
	r.GET("/conversations/:id/messages", middleware.E(h.thread), auth) // :id 为对方
	r.PUT("/conversations/:id/read", middleware.E(h.markRead), auth)   // :id 为会话
	r.DELETE("/messages/:id", middleware.E(h.deleteMessage), auth)
}

func (h *Handler) send(c *gin.Context) error {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg("invalid request body", "err", err.Error())
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), security.UserID(c), c.Param("id"), req.Message)
	if err != nil {
		return err
	}
	c.JSON(http.StatusCreated, msg)
	return nil
}

// thread 拉取与对方的全部消息；对方发给我的未读消息会被置为已读
func (h *Handler) thread(c *gin.Context) error {
	msgs, err := h.svc.FetchThread(c.Request.Context(), security.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, msgs)
	return nil
}

func (h *Handler) listConversations(c *gin.Context) error {
	list, err := h.svc.ListConversations(c.Request.Context(), security.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, list)
	return nil
}

func (h *Handler) markRead(c *gin.Context) error {
	n, err := h.svc.MarkRead(c.Request.Context(), c.Param("id"), security.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
	return nil
}

func (h *Handler) deleteMessage(c *gin.Context) error {
	if err := h.svc.DeleteMessage(c.Request.Context(), c.Param("id"), security.UserID(c)); err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	return nil
}
