package http

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/progress-sync/internal/infrastructure"
	"github.com/pot-code/progress-sync/internal/progress"
)

// NewProgressFeedHandler stream local-truth changes to the UI so it re-renders
// from merged state without polling. One subscription per connection, released
// when the peer goes away.
func NewProgressFeedHandler(feed *progress.Feed) echo.HandlerFunc {
	return infra.WithHeartbeat(func(conn *websocket.Conn) error {
		events, cancel := feed.Subscribe()
		defer cancel()
		for record := range events {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(record); err != nil {
				return err
			}
		}
		return errors.New("progress feed closed")
	})
}
