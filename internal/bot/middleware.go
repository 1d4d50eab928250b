package bot

import (
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/Gaur97shiv/playknow/internal/config"
)

// AdminChecker reports whether a Telegram user is an operator.
type AdminChecker interface {
	IsAdmin(userID int64) bool
}

var _ AdminChecker = (*config.Config)(nil)

// AdminMiddleware rejects senders not listed in admin.ids.
func AdminMiddleware(admins AdminChecker) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !admins.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ Permission denied: admin only")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware logs each command once it has been handled.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)

			event := log.Debug()
			if err != nil {
				event = log.Warn().Err(err)
			}
			if sender := c.Sender(); sender != nil {
				event = event.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				event = event.Int64("chat_id", chat.ID)
			}
			event.
				Str("command", c.Text()).
				Dur("elapsed", time.Since(start)).
				Msg("Bot command handled")
			return err
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Internal error, please try again later")
				}
			}()
			return next(c)
		}
	}
}
