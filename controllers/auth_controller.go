package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"fibo_store/app"
	"fibo_store/auth"
	"fibo_store/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// safeNext only allows same-site paths as post-login destinations.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

func (s *Srv) loginError(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, s.WebOrigin+"/login?error="+url.QueryEscape(code))
}

// GET /auth/google/login?next=/path
func (s *Srv) GoogleLogin(c *gin.Context) {
	state := uuid.NewString()
	if err := s.Sess.SaveOAuthState(c.Request.Context(), state, safeNext(c.Query("next"))); err != nil {
		s.respondErr(c, err)
		return
	}
	c.Redirect(http.StatusFound, s.Google.AuthCodeURL(state))
}

// GET /auth/google/callback?state=&code=
func (s *Srv) GoogleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	if e := c.Query("error"); e != "" {
		s.loginError(c, e)
		return
	}

	next, err := s.Sess.ConsumeOAuthState(ctx, c.Query("state"))
	if err != nil {
		s.loginError(c, "invalid_state")
		return
	}

	id, err := s.Google.Exchange(ctx, c.Query("code"))
	if err != nil {
		s.Log.Warn("oauth exchange", zap.Error(err))
		s.loginError(c, "oauth_failed")
		return
	}

	p, err := s.Gate.SignIn(id)
	if errors.Is(err, auth.ErrDomainNotAllowed) {
		s.Log.Info("sign-in denied", zap.String("email", id.Email))
		s.loginError(c, "domain_not_allowed")
		return
	}

	dbCtx, cancel := timeoutCtx(c)
	defer cancel()
	u, err := s.Repo.UpsertUser(dbCtx, p.Email, id.Name, id.Image)
	if err != nil {
		s.Log.Error("upsert user", zap.String("email", p.Email), zap.Error(err))
		s.loginError(c, "server_error")
		return
	}
	if err := s.issueSession(dbCtx, c.Writer, u, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.Log.Error("create session", zap.String("email", p.Email), zap.Error(err))
		s.loginError(c, "server_error")
		return
	}
	s.Log.Info("signed in", zap.String("email", p.Email), zap.String("role", string(p.Role)))
	c.Redirect(http.StatusFound, s.WebOrigin+next)
}

// POST /auth/refresh trades the refresh cookie for a fresh access token. The
// role is derived again from the current admin allowlist.
func (s *Srv) Refresh(c *gin.Context) {
	ck, err := c.Request.Cookie(app.RefreshCookie)
	if err != nil || ck.Value == "" {
		c.JSON(http.StatusUnauthorized, app.H{"detail": "not authenticated"})
		return
	}
	ctx := c.Request.Context()
	as, err := s.AppSess.Get(ctx, ck.Value)
	if errors.Is(err, session.ErrSessionNotFound) {
		s.clearRefreshCookie(c.Writer)
		c.JSON(http.StatusUnauthorized, app.H{"detail": "session expired"})
		return
	}
	if err != nil {
		s.respondErr(c, err)
		return
	}

	p, err := s.Gate.Refresh(auth.Identity{Email: as.Email, Name: as.Name, Image: as.Image})
	if err != nil {
		_ = s.AppSess.Delete(ctx, ck.Value)
		s.clearRefreshCookie(c.Writer)
		s.respondErr(c, err)
		return
	}
	resp, err := s.accessToken(p)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /auth/logout
func (s *Srv) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.RefreshCookie); err == nil && ck.Value != "" {
		if err := s.AppSess.Delete(c.Request.Context(), ck.Value); err != nil {
			s.Log.Warn("delete session", zap.Error(err))
		}
	}
	s.clearRefreshCookie(c.Writer)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /auth/me
func (s *Srv) Me(c *gin.Context) {
	p := principal(c)
	out := app.H{"email": p.Email, "name": p.Name, "role": p.Role}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	if u, err := s.Repo.FindUserByEmail(ctx, p.Email); err == nil {
		out["image"] = u.ImageURL
		n, _ := s.Repo.CountCredentials(ctx, u.ID)
		out["passkeys"] = n
	}
	c.JSON(http.StatusOK, out)
}
