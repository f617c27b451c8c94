package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	peerRequestTimeout  = 2 * time.Second
	peerLivenessTimeout = 1 * time.Second
)

// PeerInfoResponse is the body of a peer's GET /info.
type PeerInfoResponse struct {
	NodeID            string `json:"node_id"`
	BlockchainID      string `json:"blockchain_id"`
	ProtocolVersion   string `json:"protocol_version"`
	NetworkingVersion string `json:"networking_version"`
	BlockHeight       uint64 `json:"block_height"`
}

// PeerClient makes outbound HTTP calls to other nodes. Every call is
// bounded by peerRequestTimeout (the liveness probe by the shorter
// peerLivenessTimeout) so one unresponsive peer cannot stall a health
// check or sync round.
type PeerClient struct {
	http *http.Client
}

// NewPeerClient builds a client whose requests are capped at
// peerRequestTimeout.
func NewPeerClient() *PeerClient {
	return &PeerClient{
		http: &http.Client{Timeout: peerRequestTimeout},
	}
}

func (c *PeerClient) getJSON(addr, route string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), peerRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+route, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s%s: status %d", addr, route, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PostRaw sends payload to addr+route, returning an error if the peer is
// unreachable or answers with a non-2xx status. Used for fire-and-forget
// broadcasts.
func (c *PeerClient) PostRaw(addr, route string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), peerRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+route, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s%s: status %d", addr, route, resp.StatusCode)
	}
	return nil
}

// GetInfo fetches a peer's node identity and version banner.
func (c *PeerClient) GetInfo(addr string) (PeerInfoResponse, error) {
	var out PeerInfoResponse
	err := c.getJSON(addr, "/info", &out)
	return out, err
}

// GetPeers fetches a peer's own list of active peer addresses.
func (c *PeerClient) GetPeers(addr string) ([]string, error) {
	var out []string
	err := c.getJSON(addr, "/peers", &out)
	return out, err
}

// Ping reports whether addr answers its root service probe with a 2xx
// status. This is the liveness check; the POST /ping route is a
// different thing (candidate-peer registration), not a probe. Bounded by
// peerLivenessTimeout.
func (c *PeerClient) Ping(addr string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), peerLivenessTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2
}

// PostPing announces this node's listening port to addr so addr can
// reciprocate inbound connections, per the fullnode admission handshake.
func (c *PeerClient) PostPing(addr string, port int) error {
	body, err := json.Marshal(struct {
		Port int `json:"port"`
	}{Port: port})
	if err != nil {
		return err
	}
	return c.PostRaw(addr, "/ping", body)
}

// GetLatestBlock fetches a peer's chain tip.
func (c *PeerClient) GetLatestBlock(addr string) (Block, error) {
	var out Block
	err := c.getJSON(addr, "/latest-block", &out)
	return out, err
}

// GetBlockInv fetches a peer's full list of block hashes.
func (c *PeerClient) GetBlockInv(addr string) ([]string, error) {
	var out []string
	err := c.getJSON(addr, "/blockinv", &out)
	return out, err
}

// GetBlockByHash fetches a single block by hash from a peer.
func (c *PeerClient) GetBlockByHash(addr, hash string) (Block, error) {
	var out Block
	err := c.getJSON(addr, "/block/"+hash, &out)
	return out, err
}

// GetUnconfirmedTransactions fetches a peer's unconfirmed pool.
func (c *PeerClient) GetUnconfirmedTransactions(addr string) ([]Transaction, error) {
	var out []Transaction
	err := c.getJSON(addr, "/unconfirmed-transactions", &out)
	return out, err
}

// GetPendingTransactions fetches a peer's pending mempool.
func (c *PeerClient) GetPendingTransactions(addr string) ([]Transaction, error) {
	var out []Transaction
	err := c.getJSON(addr, "/pending-transactions", &out)
	return out, err
}

// PostBlock broadcasts a mined/accepted block to addr.
func (c *PeerClient) PostBlock(addr string, block Block) error {
	body, err := json.Marshal(block)
	if err != nil {
		return err
	}
	return c.PostRaw(addr, "/block-recv", body)
}

// PostTransaction broadcasts a transaction to addr.
func (c *PeerClient) PostTransaction(addr string, tx Transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return c.PostRaw(addr, "/tx-recv", body)
}
