package app

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"bumpbot/internal/commands"
	"bumpbot/internal/transport"
	logx "bumpbot/pkg/logx"
)

const handlerTimeout = 15 * time.Second

// dispatchLoop fans updates out to a bounded worker pool so one slow REST
// call does not hold up interaction replies, which Discord expires after 3s.
func (a *App) dispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := max(2, min(runtime.NumCPU(), 8))
	jobs := make(chan transport.Update, cap(updates))
	log := a.log.With(logx.String("comp", "dispatch"))
	log.Info("dispatcher started", logx.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			for up := range jobs {
				a.handle(ctx, log.With(logx.Int("worker", i)), up)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
		log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case jobs <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (a *App) handle(ctx context.Context, log logx.Logger, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in update handler", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	switch up.Kind {
	case transport.UpdateReady:
		a.registerCommands(hctx)
	case transport.UpdateMessage:
		if up.Message != nil {
			a.trig.OnMessage(hctx, *up.Message)
		}
	case transport.UpdateInteraction:
		a.cmds.HandleInteraction(hctx, up.Interaction)
	default:
		log.Debug("update ignored", logx.String("kind", string(up.Kind)))
	}
}

func (a *App) registerCommands(ctx context.Context) {
	guildID := ""
	if cfg := a.cfgm.Get(); cfg != nil {
		guildID = cfg.Discord.GuildID
	}
	if err := a.adapter.RegisterCommands(ctx, guildID, commands.Definitions()); err != nil {
		a.log.Error("command registration failed", logx.Err(err))
	}
}
