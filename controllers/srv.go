package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fibo_store/app"
	"fibo_store/auth"
	"fibo_store/db"
	"fibo_store/models"
	"fibo_store/services"
	"fibo_store/session"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// requests get at most this long for their database work
const dbTimeout = 3 * time.Second

type Srv struct {
	WA       *webauthn.WebAuthn
	Repo     *db.Repo
	RDB      *redis.Client
	Sess     *session.Store
	AppSess  *session.AppSessionStore
	Gate     *auth.Gate
	Tokens   *auth.TokenIssuer
	Google   auth.IdentityProvider
	Items    *services.ItemService
	Bookings *services.BookingService
	Log      *zap.Logger

	WebOrigin string
	Cfg       app.Config
}

func GetSrv(a *app.App) *Srv {
	repo := db.NewRepo(a.DB)
	return &Srv{
		WA:        a.WA,
		Repo:      repo,
		RDB:       a.RDB,
		Sess:      session.NewStore(a.RDB, a.Config.SessionTTL),
		AppSess:   a.AppSessions(),
		Gate:      a.Gate,
		Tokens:    a.Tokens,
		Google:    a.Google,
		Items:     services.NewItemService(repo, a.Images, a.Config.LowStockThreshold, a.Log),
		Bookings:  services.NewBookingService(repo, services.NewInventoryService(a.Log), a.Log),
		Log:       a.Log,
		WebOrigin: a.Config.WebOrigin,
		Cfg:       a.Config,
	}
}

// --- helpers ---

func (s *Srv) secureCookies() bool { return strings.HasPrefix(s.WebOrigin, "https://") }

func (s *Srv) setRefreshCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.RefreshCookie,
		Value:    sessionID,
		Path:     "/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(),
		MaxAge:   int(maxAge / time.Second),
	})
}

func (s *Srv) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.RefreshCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(),
	})
}

type tokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresAt   time.Time      `json:"expires_at"`
	User        auth.Principal `json:"user"`
}

func (s *Srv) accessToken(p auth.Principal) (*tokenResponse, error) {
	tok, exp, err := s.Tokens.Issue(p)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{AccessToken: tok, TokenType: "Bearer", ExpiresAt: exp, User: p}, nil
}

// issueSession records the login and starts a refresh session for an admitted user.
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, u *models.User, ip, ua string) error {
	if err := s.Repo.TouchUserLogin(ctx, u.ID, ip, ua); err != nil {
		s.Log.Warn("touch user login", zap.String("user_id", u.ID), zap.Error(err))
	}
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, session.AppSession{Email: u.Email, Name: u.FullName, Image: u.ImageURL}); err != nil {
		return err
	}
	s.setRefreshCookie(w, id, s.AppSess.TTL())
	return nil
}

func principal(c *gin.Context) auth.Principal {
	p, _ := app.CurrentPrincipal(c)
	return p
}

func timeoutCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), dbTimeout)
}

// WebAuthn: DB user -> waUser
type waUser struct {
	user  models.User
	creds []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { id, _ := uuid.Parse(u.user.ID); return id[:] }
func (u *waUser) WebAuthnName() string                       { return u.user.Email }
func (u *waUser) WebAuthnDisplayName() string                { return u.user.FullName }
func (u *waUser) WebAuthnIcon() string                       { return "" }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func (s *Srv) waUserFor(ctx context.Context, u *models.User) (*waUser, error) {
	cs, err := s.Repo.LoadUserCredentials(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{user: *u, creds: ws}, nil
}

func (s *Srv) loadWAUserByEmail(ctx context.Context, email string) (*waUser, error) {
	u, err := s.Repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.waUserFor(ctx, u)
}
