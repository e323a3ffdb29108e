package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/account"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const accountOpTimeout = 3 * time.Second

type AccountService interface {
	Register(ctx context.Context, req user.RegisterRequest) (account.Response, error)
	Login(ctx context.Context, req user.LoginRequest) (account.Response, error)
	Delete(ctx context.Context, userID string) (account.Response, error)
	GetByID(ctx context.Context, userID string) (user.Profile, error)
}

type AccountHandler struct {
	svc AccountService
	log *slog.Logger
}

func NewAccountHandler(svc AccountService, log *slog.Logger) *AccountHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AccountHandler{svc: svc, log: log}
}

// Register answers 200 with the envelope for both outcomes; only malformed bodies get a 400.
func (h *AccountHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	resp, err := h.svc.Register(cctx, req)
	if err != nil {
		h.internal(ctx, "register failed", err)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	resp, err := h.svc.Login(cctx, req)
	if err != nil {
		h.internal(ctx, "login failed", err)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) Delete(ctx *gin.Context) {
	var req user.DeleteRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	resp, err := h.svc.Delete(cctx, req.UserID)
	if err != nil {
		h.internal(ctx, "delete failed", err)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if _, err := uuid.Parse(id); err != nil {
		RespondBadRequest(ctx, "Invalid user id", gin.H{"field": "id", "rule": "uuid"})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), accountOpTimeout)
	defer cancel()

	p, err := h.svc.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, account.MsgUserNotFound)
			return
		}
		h.internal(ctx, "get user failed", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, p)
}

func (h *AccountHandler) internal(ctx *gin.Context, msg string, err error) {
	h.log.ErrorContext(ctx.Request.Context(), msg,
		"err", err,
		"request_id", requestIDFrom(ctx),
	)
	RespondInternal(ctx)
}
