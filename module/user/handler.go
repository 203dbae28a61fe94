package user

import (
	"net/http"

	"PPDirect/middleware"
	"PPDirect/middleware/security"
	userservice "PPDirect/module/user/service"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
)

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler 账号相关的 HTTP 接口
type Handler struct {
	svc *userservice.Service
}

func NewHandler(svc *userservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Register 挂载到 /api 分组下
func (h *Handler) Register(r *middleware.Router) {
	r.POST("/auth/register", middleware.E(h.register), middleware.RouteOpt{})
	r.POST("/auth/login", middleware.E(h.login), middleware.RouteOpt{})
	r.GET("/users", middleware.E(h.list), middleware.RouteOpt{IsAuth: true})
	r.GET("/users/search", middleware.E(h.search), middleware.RouteOpt{IsAuth: true})
	r.GET("/users/me", middleware.E(h.me), middleware.RouteOpt{IsAuth: true})
}

func (h *Handler) register(c *gin.Context) error {
	var p userservice.RegisterParams
	if err := c.ShouldBindJSON(&p); err != nil {
		return errs.ErrArgs.WrapMsg("invalid request body", "err", err.Error())
	}
	res, err := h.svc.Register(c.Request.Context(), p)
	if err != nil {
		return err
	}
	c.JSON(http.StatusCreated, res)
	return nil
}

func (h *Handler) login(c *gin.Context) error {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg("invalid request body", "err", err.Error())
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, res)
	return nil
}

// list 侧边栏：除自己以外的所有用户
func (h *Handler) list(c *gin.Context) error {
	views, err := h.svc.List(c.Request.Context(), security.UserID(c), "")
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, views)
	return nil
}

func (h *Handler) search(c *gin.Context) error {
	views, err := h.svc.List(c.Request.Context(), security.UserID(c), c.Query("q"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, views)
	return nil
}

func (h *Handler) me(c *gin.Context) error {
	u, err := h.svc.Get(c.Request.Context(), security.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, u)
	return nil
}
