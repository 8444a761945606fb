package bot

import (
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-slot-scheduler/internal/config"
)

// chatAllowed decides whether an update from chat is served. Private
// chats always are; the handlers check that the sender is a linked
// employee.
func chatAllowed(cfg *config.Config, chat *tele.Chat) bool {
	if chat.Type == tele.ChatPrivate {
		return true
	}
	return cfg.IsChatAllowed(chat.ID)
}

// WhitelistMiddleware creates a middleware that ignores group chats not
// in the configured whitelist.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil || c.Sender() == nil {
				return nil
			}

			if !chatAllowed(cfg, chat) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-whitelisted chat")
				return nil
			}
			return next(c)
		}
	}
}

// AdminMiddleware creates a middleware that checks if the user is HR.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ Permission denied: HR only")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware logs each command with the sender and chat. Only
// the command name and argument count are logged.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug().
				Str("command", commandOf(c.Text())).
				Int("args", len(c.Args()))
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("telegram_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
			}
			ev.Msg("Command received")

			return next(c)
		}
	}
}

// commandOf returns "/cmd" from "/cmd@botname arg ...".
func commandOf(text string) string {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Something went wrong, please try again later")
				}
			}()
			return next(c)
		}
	}
}
