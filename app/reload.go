package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fibo_store/config"

	"go.uber.org/zap"
)

// ReloadAdmins re-reads the env files and swaps the admin allowlist. Sessions
// pick the change up at their next token refresh.
func (a *App) ReloadAdmins(files ...string) error {
	if err := config.Reload(files...); err != nil {
		return err
	}
	admins := LoadConfig().AdminEmails
	a.Gate.Replace(admins)
	a.Config.AdminEmails = admins
	a.Log.Info("admin allowlist reloaded", zap.Int("admins", len(admins)))
	return nil
}

// WatchReload calls ReloadAdmins on every SIGHUP until ctx is done.
func (a *App) WatchReload(ctx context.Context, files ...string) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if err := a.ReloadAdmins(files...); err != nil {
					a.Log.Error("reload config", zap.Error(err))
				}
			}
		}
	}()
}
