package auth

import (
	"errors"
	"strings"
	"sync"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Identity is what the identity provider vouches for.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Principal is an authenticated caller.
type Principal struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

var ErrDomainNotAllowed = errors.New("sign-in is restricted to the institutional email domain")

type GateConfig struct {
	AllowedDomain string   // e.g. "student.fibo.edu"; no leading "@"
	AdminEmails   []string // matched case-insensitively
}

// Gate decides who may sign in and with which role. The admin list can be
// swapped at runtime; callers pick it up at their next SignIn or Refresh.
type Gate struct {
	suffix string

	mu     sync.RWMutex
	admins map[string]struct{}
}

func NewGate(cfg GateConfig) *Gate {
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.AllowedDomain), "@"))
	g := &Gate{suffix: "@" + d}
	g.Replace(cfg.AdminEmails)
	return g
}

// SignIn admits identities from the allowed domain only. An allow-listed
// admin outside the domain is still refused.
func (g *Gate) SignIn(id Identity) (Principal, error) {
	email := normalizeEmail(id.Email)
	if g.suffix == "@" || !strings.HasSuffix(email, g.suffix) || len(email) == len(g.suffix) {
		return Principal{}, ErrDomainNotAllowed
	}
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = email
	}
	return Principal{Email: email, Name: name, Role: g.RoleFor(email)}, nil
}

// Refresh re-derives the principal from scratch so allowlist changes apply.
func (g *Gate) Refresh(id Identity) (Principal, error) { return g.SignIn(id) }

func (g *Gate) RoleFor(email string) Role {
	g.mu.RLock()
	_, ok := g.admins[normalizeEmail(email)]
	g.mu.RUnlock()
	if ok {
		return RoleAdmin
	}
	return RoleStudent
}

func (g *Gate) Replace(adminEmails []string) {
	next := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			next[e] = struct{}{}
		}
	}
	g.mu.Lock()
	g.admins = next
	g.mu.Unlock()
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
