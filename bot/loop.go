package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrLerich/diplom8/bot/tg"
	"github.com/MrLerich/diplom8/db/models"
)

// Poller is the receive half of the transport, Sender the send half.
// Both are satisfied by *tg.Client.
type Poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tg.Update, int64, error)
}

type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// IdentityResolver is satisfied by *Linker.
type IdentityResolver interface {
	Resolve(ctx context.Context, chatID, tgUserID int64, username string) (*models.ChatIdentity, bool, error)
}

type LoopOptions struct {
	Poller      Poller
	Sender      Sender
	Resolver    IdentityResolver
	Dispatcher  *Dispatcher
	Logger      *slog.Logger
	PollTimeout time.Duration
}

// Loop drives the bot: poll, dedupe, resolve the sender's identity, feed
// the dispatcher, send the reply lines. Updates are processed strictly
// in provider order, which serializes all conversation-state transitions
// without further locking.
type Loop struct {
	poller      Poller
	sender      Sender
	resolver    IdentityResolver
	dispatcher  *Dispatcher
	logger      *slog.Logger
	pollTimeout time.Duration

	offset int64
	// lastMessageID tracks the most recent message id seen per chat so
	// a redelivered message never triggers a second reply.
	lastMessageID map[int64]int64
}

func NewLoop(opts LoopOptions) (*Loop, error) {
	if opts.Poller == nil {
		return nil, fmt.Errorf("poller is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	return &Loop{
		poller:        opts.Poller,
		sender:        opts.Sender,
		resolver:      opts.Resolver,
		dispatcher:    opts.Dispatcher,
		logger:        opts.Logger,
		pollTimeout:   opts.PollTimeout,
		lastMessageID: make(map[int64]int64),
	}, nil
}

// Run polls until the context is cancelled. A failed poll is logged and
// retried on the next iteration; the loop itself is the retry mechanism.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("bot_start", "poll_timeout", l.pollTimeout.String())
	for {
		if ctx.Err() != nil {
			l.logger.Info("bot_stop", "reason", "context_canceled")
			return nil
		}
		updates, next, err := l.poller.GetUpdates(ctx, l.offset, l.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				l.logger.Info("bot_stop", "reason", "context_canceled")
				return nil
			}
			l.logger.Warn("bot_get_updates_error", "error", err.Error())
			select {
			case <-ctx.Done():
				l.logger.Info("bot_stop", "reason", "context_canceled")
				return nil
			case <-time.After(1 * time.Second):
			}
			continue
		}
		// Advancing past the whole batch up front means a crash after
		// this point never replays an already-delivered update.
		l.offset = next

		for _, u := range updates {
			l.handleUpdate(ctx, u)
		}
	}
}

func (l *Loop) handleUpdate(ctx context.Context, u tg.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.From == nil || msg.From.IsBot {
		return
	}
	chatID := msg.Chat.ID
	if last, seen := l.lastMessageID[chatID]; seen && last == msg.MessageID {
		return
	}
	l.lastMessageID[chatID] = msg.MessageID

	identity, first, err := l.resolver.Resolve(ctx, chatID, msg.From.ID, msg.From.Username)
	if err != nil {
		l.logger.Warn("bot_resolve_identity_error", "chat_id", chatID, "error", err.Error())
		return
	}
	// Unlinked chats only ever get the verification prompt; no command
	// runs until the code has been redeemed on the site.
	if first || identity.UserID == nil {
		l.send(ctx, chatID, verificationPrompt(identity.VerificationCode))
		return
	}

	reply := l.dispatcher.Handle(ctx, chatID, *identity.UserID, msg.Text)
	for _, line := range reply.Lines() {
		l.send(ctx, chatID, line)
	}
}

func (l *Loop) send(ctx context.Context, chatID int64, text string) {
	if err := l.sender.SendMessage(ctx, chatID, text); err != nil {
		l.logger.Warn("bot_send_error", "chat_id", chatID, "error", err.Error())
	}
}

func verificationPrompt(code string) string {
	return fmt.Sprintf("Please verify your account. Enter this code on the site: %s", code)
}
