package voicelive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Audio deltas come base64 encoded and can be several seconds long.
const maxMessageBytes = 16 << 20

// Client is the websocket implementation of Session.
type Client struct {
	conn   *websocket.Conn
	events chan ServerEvent
	log    zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the realtime endpoint and starts the read loop.
// The api-key header carries authentication.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	header := http.Header{}
	header.Set("api-key", cfg.APIKey)

	conn, resp, err := websocket.Dial(ctx, cfg.WebsocketURL(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing voice-live (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing voice-live: %w", err)
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &Client{
		conn:   conn,
		events: make(chan ServerEvent, 64),
		log:    log.With().Str("caller", "voicelive").Logger(),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				c.log.Debug().Msg("Event stream closed")
			} else {
				c.log.Error().Err(err).Msg("Event stream read failed")
			}
			return
		}

		var ev ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Warn().Err(err).Msg("Skipping undecodable server event")
			continue
		}
		c.events <- ev
	}
}

// Events implements Session. The channel closes when the websocket
// read loop ends.
func (c *Client) Events() <-chan ServerEvent {
	return c.events
}

// SendEvent marshals and sends one client event as a text message.
// Safe for concurrent use.
func (c *Client) SendEvent(ctx context.Context, ev ClientEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", ev.EventType(), err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("sending %s: %w", ev.EventType(), err)
	}
	return nil
}

// SendInputAudio appends one chunk of PCM16 caller audio to the input
// buffer.
func (c *Client) SendInputAudio(ctx context.Context, pcm []byte) error {
	return c.SendEvent(ctx, NewInputAudioBufferAppend(pcm))
}

// Close closes the websocket with a normal closure.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return c.closeErr
}
