package controllers

import (
	"context"
	"errors"
	"net/http"

	"fibo_store/app"
	"fibo_store/auth"
	"fibo_store/models"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===== passkey registration (signed in) =====

func (s *Srv) BeginAddCredential(c *gin.Context) {
	p := principal(c)
	ctx, cancel := timeoutCtx(c)
	defer cancel()

	wUser, err := s.loadWAUserByEmail(ctx, p.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, app.H{"detail": "unknown user"})
		return
	}
	if err != nil {
		s.respondErr(c, err)
		return
	}

	excl := make([]protocol.CredentialDescriptor, 0, len(wUser.creds))
	for _, cr := range wUser.creds {
		excl = append(excl, cr.Descriptor())
	}
	opts, sd, err := s.WA.BeginRegistration(
		wUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
		webauthn.WithExclusions(excl),
	)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	if err := s.Sess.SaveReg(ctx, p.Email, sd); err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	p := principal(c)
	ctx, cancel := timeoutCtx(c)
	defer cancel()

	wUser, err := s.loadWAUserByEmail(ctx, p.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, app.H{"detail": "unknown user"})
		return
	}
	if err != nil {
		s.respondErr(c, err)
		return
	}

	sd, err := s.Sess.LoadReg(ctx, p.Email)
	if err != nil {
		badRequest(c, "registration expired or invalid")
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := s.Repo.AddCredential(ctx, &models.Credential{
		UserID:          wUser.user.ID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}); err != nil {
		s.respondErr(c, err)
		return
	}
	s.Sess.DelReg(ctx, p.Email)
	s.Log.Info("passkey added", zap.String("email", p.Email))
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// ===== passkey sign-in =====

type loginBeginReq struct {
	// empty means a discoverable (usernameless) ceremony
	Email string `json:"email"`
}

type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON body")
			return
		}
	}
	ctx, cancel := timeoutCtx(c)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if req.Email == "" {
		opts, sd, err = s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		wUser, lerr := s.loadWAUserByEmail(ctx, req.Email)
		if lerr != nil {
			c.JSON(http.StatusNotFound, app.H{"detail": "user not found"})
			return
		}
		opts, sd, err = s.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	sid := uuid.NewString()
	if err := s.Sess.SaveAuth(ctx, sid, sd); err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

// FinishLogin verifies the assertion, then admits the account through the same
// gate as the OAuth callback and returns an access token.
func (s *Srv) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		badRequest(c, "missing sessionId")
		return
	}
	ctx, cancel := timeoutCtx(c)
	defer cancel()

	sd, err := s.Sess.LoadAuth(ctx, sid)
	if err != nil {
		badRequest(c, "sign-in expired or invalid")
		return
	}

	handler := func(rawID, _ []byte) (webauthn.User, error) {
		u, _, err := s.Repo.FindUserByCredentialID(ctx, rawID)
		if err != nil {
			return nil, protocol.ErrBadRequest.WithDetails("credential not found")
		}
		return s.waUserFor(ctx, u)
	}
	wu, cred, err := s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"detail": "passkey verification failed"})
		return
	}
	s.Sess.DelAuth(ctx, sid)

	u := wu.(*waUser).user
	s.recordCredentialUse(ctx, u.Email, cred)

	p, err := s.Gate.SignIn(auth.Identity{Email: u.Email, Name: u.FullName, Image: u.ImageURL})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	if err := s.issueSession(ctx, c.Writer, &u, c.ClientIP(), c.Request.UserAgent()); err != nil {
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

// recordCredentialUse stores the new sign count and last-used time. Failures
// are logged; the sign-in itself already succeeded.
func (s *Srv) recordCredentialUse(ctx context.Context, email string, cred *webauthn.Credential) {
	if err := s.Repo.UpdateCredentialCounter(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning); err != nil {
		s.Log.Warn("update sign count", zap.String("email", email), zap.Error(err))
	}
	if err := s.Repo.TouchCredentialUsed(ctx, cred.ID); err != nil {
		s.Log.Warn("touch credential", zap.String("email", email), zap.Error(err))
	}
}
