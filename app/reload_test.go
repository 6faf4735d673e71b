package app

import (
	"os"
	"path/filepath"
	"testing"

	"fibo_store/auth"
	"fibo_store/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReloadAdmins(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", "boss@student.fibo.edu")
	a := &App{
		Gate: auth.NewGate(auth.GateConfig{AllowedDomain: "student.fibo.edu", AdminEmails: []string{"boss@student.fibo.edu"}}),
		Log:  zap.NewNop(),
	}
	require.Equal(t, auth.RoleStudent, a.Gate.RoleFor("kid@student.fibo.edu"))

	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("ADMIN_EMAILS=Kid@Student.fibo.edu\n"), 0o600))
	require.NoError(t, a.ReloadAdmins(env))

	require.Equal(t, auth.RoleAdmin, a.Gate.RoleFor("kid@student.fibo.edu"))
	require.Equal(t, auth.RoleStudent, a.Gate.RoleFor("boss@student.fibo.edu"))
	require.Equal(t, []string{"kid@student.fibo.edu"}, a.Config.AdminEmails)
}

func TestReloadAdmins_MissingFileKeepsList(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", "boss@student.fibo.edu")
	a := &App{
		Gate: auth.NewGate(auth.GateConfig{AllowedDomain: "student.fibo.edu", AdminEmails: []string{"boss@student.fibo.edu"}}),
		Log:  zap.NewNop(),
	}
	require.NoError(t, a.ReloadAdmins(filepath.Join(t.TempDir(), "missing.env")))
	require.Equal(t, auth.RoleAdmin, a.Gate.RoleFor("BOSS@student.fibo.edu"))
}

func TestReloadAdmins_RemovedLineClearsList(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("ADMIN_EMAILS", "")
	require.NoError(t, os.Unsetenv("ADMIN_EMAILS"))

	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("ADMIN_EMAILS=boss@student.fibo.edu\n"), 0o600))
	require.NoError(t, config.LoadEnv(env))

	a := &App{Gate: auth.NewGate(LoadConfig().GateConfig()), Log: zap.NewNop()}
	require.Equal(t, auth.RoleAdmin, a.Gate.RoleFor("boss@student.fibo.edu"))

	require.NoError(t, os.WriteFile(env, []byte("LOG_LEVEL=info\n"), 0o600))
	require.NoError(t, a.ReloadAdmins(env))
	require.Equal(t, auth.RoleStudent, a.Gate.RoleFor("boss@student.fibo.edu"))
	require.Empty(t, a.Config.AdminEmails)
}
