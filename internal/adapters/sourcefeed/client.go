package sourcefeed

import (
	"context"
	"fmt"

	"tgrelay/internal/adapters/telegram/core"
	"tgrelay/internal/infra/config"
	"tgrelay/internal/infra/logger"
	"tgrelay/internal/infra/telegram/connection"
	"tgrelay/internal/infra/telegram/session"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	tgupdates "github.com/gotd/td/telegram/updates"
	updhook "github.com/gotd/td/telegram/updates/hook"
	"go.uber.org/zap"
)

// NewClient builds the MTProto client and its updates.Manager, wiring
// dispatch (the gotd tg.UpdateDispatcher the caller registers handlers on)
// as the update handler. Grounded on the teacher's app.Init client
// construction, replacing the dead core.New/core.ClientCore with a direct
// telegram.NewClient call.
func NewClient(dispatch telegram.UpdateHandler) (*telegram.Client, *tgupdates.Manager) {
	updMgr := tgupdates.New(tgupdates.Config{
		Handler: dispatch,
		Storage: core.NewFileStorage(config.Env().StateFile),
	})

	options := telegram.Options{
		SessionStorage: &session.FileStorage{Path: config.Env().SessionFile},
		UpdateHandler:  updMgr,
		Middlewares: []telegram.Middleware{
			updhook.UpdateHook(updMgr.Handle),
		},
		OnDead: func() {
			connection.MarkDisconnected()
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "tgrelay",
			SystemVersion: "linux",
			AppVersion:    "1.0.0",
		},
	}
	if config.Env().TestDC {
		options.DCList = dcs.Test()
	}

	client := telegram.NewClient(config.Env().APIID, config.Env().APIHash, options)
	return client, updMgr
}

// Login runs the interactive auth flow if the session isn't already
// authorized, and returns the logged-in user's id and username.
func Login(ctx context.Context, client *telegram.Client) (int64, string, error) {
	flow := auth.NewFlow(TerminalAuthenticator{PhoneNumber: config.Env().PhoneNumber}, auth.SendCodeOptions{})
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return 0, "", fmt.Errorf("sourcefeed: auth: %w", err)
	}
	self, err := client.Self(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("sourcefeed: fetch self: %w", err)
	}
	logger.Info("sourcefeed: logged in",
		zap.Int64("user_id", self.ID),
		zap.String("username", self.Username))
	return self.ID, self.Username, nil
}
