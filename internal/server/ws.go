package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/fintracker/fintracker/internal/events"
)

const feedWriteTimeout = 5 * time.Second

// RunFeed streams pipeline events to websocket clients. Each client gets
// its own subscription, slow clients miss events rather than block the bus.
type RunFeed struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewRunFeed creates a new run feed instance
func NewRunFeed(bus *events.Bus, log zerolog.Logger) *RunFeed {
	return &RunFeed{
		bus: bus,
		log: log.With().Str("handler", "run_feed").Logger(),
	}
}

// ServeHTTP handles GET /api/ws/runs
func (f *RunFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		f.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	ch, unsubscribe := f.bus.SubscribeAll()
	defer unsubscribe()

	// The feed is write-only. Reading in the background processes control
	// frames and detects the client going away.
	go func() {
		defer cancelCtx()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	f.log.Info().Str("remote_addr", r.RemoteAddr).Msg("Run feed client connected")

	for {
		select {
		case <-ctx.Done():
			f.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Run feed client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := f.writeEvent(ctx, conn, event); err != nil {
				closeStatus := websocket.CloseStatus(err)
				if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
					f.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Run feed client disconnected")
				} else if ctx.Err() == nil {
					f.log.Warn().Err(err).Msg("Run feed write failed")
				}
				return
			}
		}
	}
}

func (f *RunFeed) writeEvent(ctx context.Context, conn *websocket.Conn, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		f.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to marshal event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}
