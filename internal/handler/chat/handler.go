package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/model/chat"
	chatService "github.com/zhouzirui/emopulse/backend/internal/service/chat"
	"github.com/zhouzirui/emopulse/backend/pkg/utils"
)

// Handler 会话历史的HTTP处理器
type Handler struct {
	store chatService.Store
	log   logrus.FieldLogger
}

// New 创建会话历史处理器
func New(store chatService.Store, log logrus.FieldLogger) *Handler {
	return &Handler{store: store, log: logger.Component(log, "http")}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history/{userID}", h.handleHistory)
}

// handleHistory 返回用户的完整会话历史
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))

	turns, err := h.store.GetHistory(r.Context(), userID)
	if err != nil {
		if errors.Is(err, chatService.ErrUserIDRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.WithError(err).WithField("user_id", userID).Error("history read failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	utils.RespondJSON(w, http.StatusOK, chat.History{UserID: userID, ChatHistory: turns})
}
