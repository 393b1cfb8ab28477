package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cinema_pos/events"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2/log"
)

// Subscriber follows the server's print topic for one theater and feeds
// the batches to a dispatcher.
type Subscriber struct {
	url        string
	header     http.Header
	dispatcher *Dispatcher
	dialer     *websocket.Dialer
}

func NewSubscriber(serverURL string, theaterID uint, token string, d *Dispatcher) *Subscriber {
	base := strings.TrimRight(serverURL, "/")
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Subscriber{
		url:        fmt.Sprintf("%s/api/v1/stream/%d?topic=%s", base, theaterID, events.TopicPrint),
		header:     header,
		dispatcher: d,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (s *Subscriber) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warnw("print subscription dropped", "error", err, "retryIn", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (s *Subscriber) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("subscribed to %s", s.url)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.Handle(ctx, raw)
	}
}

// Handle dispatches one print batch. Other messages are ignored.
func (s *Subscriber) Handle(ctx context.Context, raw []byte) []Result {
	var batch Batch
	if err := json.Unmarshal(raw, &batch); err != nil || batch.Topic != events.TopicPrint {
		return nil
	}
	results := s.dispatcher.Dispatch(ctx, batch.Jobs)
	for _, r := range results {
		if r.Err != nil {
			log.Errorw("print job failed", "orderId", r.Job.OrderId, "kind", r.Job.Kind, "via", r.Via, "error", r.Err)
		}
	}
	return results
}
