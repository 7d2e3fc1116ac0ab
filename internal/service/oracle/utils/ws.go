package utils

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	log "github.com/InjectiveLabs/suplog"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

// NewBackoff returns the reconnect policy shared by websocket clients.
func NewBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// ConnectWebSocket dials websocketURL, retrying up to maxRetries times.
// A non-empty basicAuth is sent as a Basic Authorization header.
func ConnectWebSocket(ctx context.Context, websocketURL, basicAuth string, maxRetries int) (conn *websocket.Conn, err error) {
	u, err := url.Parse(websocketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "can not parse WS url %s", websocketURL)
	}

	header := http.Header{}
	if basicAuth != "" {
		header.Add("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(basicAuth)))
	}

	dialer := *websocket.DefaultDialer
	dialer.EnableCompression = true

	b := NewBackoff()
	for {
		conn, _, err = dialer.DialContext(ctx, u.String(), header)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		} else if err == nil {
			log.WithField("url", u.Host).Infoln("connected to websocket server")
			return conn, nil
		}

		if int(b.Attempt()) >= maxRetries {
			log.Warningf("reached maximum retries (%d) connecting to %s", maxRetries, u.Host)
			return nil, errors.Wrap(err, "reached maximum retries")
		}

		wait := b.Duration()
		log.WithError(err).Infof("failed to connect to websocket server, retry %d in %s", int(b.Attempt()), wait)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}
