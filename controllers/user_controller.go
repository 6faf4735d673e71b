package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fibo_store/app"
	"fibo_store/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /admin/users?q=alice&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	res, err := uc.Repo.ListUsers(ctx, c.Query("q"), page, size)
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "users": res.Users})
}

// GET /admin/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		badRequest(c, "invalid user id")
		return
	}
	ctx, cancel := timeoutCtx(c)
	defer cancel()
	user, err := uc.Repo.FindUserByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, app.H{"detail": "user not found"})
		return
	}
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	n, _ := uc.Repo.CountCredentials(ctx, id)
	c.JSON(http.StatusOK, app.H{"user": user, "role": uc.Gate.RoleFor(user.Email), "passkeys": n})
}

// DELETE /admin/users/:id removes the account and its passkeys and revokes
// every refresh session it holds. Admins and the caller are protected.
func (uc *UserController) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		badRequest(c, "invalid user id")
		return
	}
	ctx, cancel := timeoutCtx(c)
	defer cancel()

	target, err := uc.Repo.FindUserByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, app.H{"detail": "user not found"})
		return
	}
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	if strings.EqualFold(target.Email, principal(c).Email) {
		badRequest(c, "cannot delete yourself")
		return
	}
	if uc.Gate.RoleFor(target.Email) == auth.RoleAdmin {
		c.JSON(http.StatusForbidden, app.H{"detail": "cannot delete an admin"})
		return
	}

	if err := uc.Repo.DeleteUserByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, app.H{"detail": "user not found"})
			return
		}
		uc.respondErr(c, err)
		return
	}
	if err := uc.AppSess.RevokeAllForUser(ctx, target.Email); err != nil {
		uc.Log.Error("revoke sessions", zap.String("email", target.Email), zap.Error(err))
	}
	uc.Log.Info("user deleted", zap.String("email", target.Email), zap.String("by", principal(c).Email))
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /healthz
func (s *Srv) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := app.H{"db": "ok", "redis": "ok"}
	healthy := true
	if err := s.Repo.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	}
	if err := s.RDB.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "checks": checks})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "checks": checks})
}
