// Package ingest maintains one long-lived websocket subscription per leader
// address and republishes every non-snapshot fill onto the fill-bus
// (spec.md §4.1). Grounded on feeds/polymarket_ws.go's connectionLoop /
// readLoop / pingLoop split and internal/binance/client.go's retry loop.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/copyfollow/internal/grouper"
)

// subscribeFrame is the outbound subscribe request (spec.md §6).
type subscribeFrame struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// envelope is the tagged union on "channel" for inbound frames.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type userFillsData struct {
	IsSnapshot bool       `json:"isSnapshot"`
	User       string     `json:"user"`
	Fills      []wireFill `json:"fills"`
}

type wireFill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"`
	Time      uint64 `json:"time"`
	Hash      string `json:"hash"`
	Oid       uint64 `json:"oid"`
	Dir       string `json:"dir"`
	ClosedPnL string `json:"closedPnl"`
	Crossed   bool   `json:"crossed"`
	Fee       string `json:"fee"`
}

// Subscriber maintains the subscription for a single leader address.
type Subscriber struct {
	wsURL          string
	leader         string
	reconnectDelay time.Duration
	publish        func(grouper.Fill)
}

func NewSubscriber(wsURL, leader string, reconnectDelay time.Duration, publish func(grouper.Fill)) *Subscriber {
	return &Subscriber{
		wsURL:          wsURL,
		leader:         leader,
		reconnectDelay: reconnectDelay,
		publish:        publish,
	}
}

// Run never returns except via ctx cancellation — a subscription never
// yields to the caller (spec.md §4.1).
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connectAndStream(ctx); err != nil {
			log.Warn().Err(err).Str("leader", s.leader).Msg("ingest: subscription terminated, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Subscriber) connectAndStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetPingHandler(func(string) error {
		return conn.WriteMessage(websocket.PongMessage, nil)
	})

	sub := subscribeFrame{
		Method: "subscribe",
		Subscription: subscription{
			Type: "userFills",
			User: s.leader,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// Await subscriptionResponse before processing any fill frame.
	if err := s.awaitSubscriptionAck(conn); err != nil {
		return err
	}

	log.Info().Str("leader", s.leader).Msg("ingest: subscribed")

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warn().Err(err).Str("leader", s.leader).Msg("ingest: decode error, skipping frame")
			continue
		}

		if env.Channel != "userFills" {
			continue
		}

		var data userFillsData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			log.Warn().Err(err).Str("leader", s.leader).Msg("ingest: decode error, skipping userFills frame")
			continue
		}

		// The first batch after subscribing carries historical fills;
		// data.IsSnapshot flags it. Only batches carrying that flag are
		// skipped.
		if data.IsSnapshot {
			continue
		}

		for _, wf := range data.Fills {
			s.publish(grouper.Fill{
				Leader:    s.leader,
				Coin:      wf.Coin,
				Side:      wf.Side,
				Px:        wf.Px,
				Sz:        wf.Sz,
				TimeMs:    wf.Time,
				Hash:      wf.Hash,
				Oid:       wf.Oid,
				Dir:       wf.Dir,
				ClosedPnL: wf.ClosedPnL,
				Crossed:   wf.Crossed,
				Fee:       wf.Fee,
			})
		}
	}
}

func (s *Subscriber) awaitSubscriptionAck(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.Channel == "subscriptionResponse" {
			return nil
		}
	}
}
