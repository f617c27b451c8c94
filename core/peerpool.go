package core

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	maxActivePeers = 20
)

// PeerInfo is what the pool remembers about an active peer.
type PeerInfo struct {
	Address string
	NodeID  string
}

// PeerPool holds the node's known neighbours, partitioned into active
// (reachable, admitted) and inactive (recently unreachable). Guarded by
// its own lock, independent of the chain's.
type PeerPool struct {
	mu       sync.RWMutex
	active   map[string]PeerInfo // address -> info
	inactive map[string]struct{} // address set

	selfNodeID      string
	blockchainID    string
	protocolVersion string
	networkVersion  string

	fullnode   bool
	listenPort int

	client *PeerClient

	log *logrus.Entry
}

// NewPeerPool constructs an empty pool for this node's identity. fullnode
// and listenPort describe this node's own listener, used to reciprocate
// inbound connections with peers it admits.
func NewPeerPool(client *PeerClient, selfNodeID, blockchainID, protocolVersion, networkVersion string, fullnode bool, listenPort int) *PeerPool {
	return &PeerPool{
		active:          make(map[string]PeerInfo),
		inactive:        make(map[string]struct{}),
		selfNodeID:      selfNodeID,
		blockchainID:    blockchainID,
		protocolVersion: protocolVersion,
		networkVersion:  networkVersion,
		fullnode:        fullnode,
		listenPort:      listenPort,
		client:          client,
		log:             logrus.WithField("component", "peerpool"),
	}
}

// Active returns a snapshot of active peer addresses.
func (p *PeerPool) Active() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.active))
	for addr := range p.active {
		out = append(out, addr)
	}
	return out
}

func (p *PeerPool) hasNodeIDLocked(nodeID string) bool {
	for _, info := range p.active {
		if info.NodeID == nodeID {
			return true
		}
	}
	return false
}

// majorMinorMatch compares the MAJOR.MINOR components of two
// "MAJOR.MINOR[.PATCH]" version strings.
func majorMinorMatch(a, b string) bool {
	as := strings.SplitN(a, ".", 3)
	bs := strings.SplitN(b, ".", 3)
	if len(as) < 2 || len(bs) < 2 {
		return false
	}
	return as[0] == bs[0] && as[1] == bs[1]
}

// Add attempts to admit addr into the active set: the candidate must
// answer /info with a distinct node_id, matching protocol/networking
// MAJOR.MINOR, and matching blockchain_id. Bounded by maxActivePeers.
func (p *PeerPool) Add(addr string) bool {
	p.mu.Lock()
	if len(p.active) >= maxActivePeers {
		p.mu.Unlock()
		return false
	}
	if _, ok := p.active[addr]; ok {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	info, err := p.client.GetInfo(addr)
	if err != nil {
		return false
	}

	if info.NodeID == p.selfNodeID {
		return false
	}
	if info.BlockchainID != p.blockchainID {
		return false
	}
	if !majorMinorMatch(info.ProtocolVersion, p.protocolVersion) {
		return false
	}
	if !majorMinorMatch(info.NetworkingVersion, p.networkVersion) {
		return false
	}

	p.mu.Lock()
	if len(p.active) >= maxActivePeers {
		p.mu.Unlock()
		return false
	}
	if p.hasNodeIDLocked(info.NodeID) {
		p.mu.Unlock()
		return false
	}
	p.active[addr] = PeerInfo{Address: addr, NodeID: info.NodeID}
	delete(p.inactive, addr)
	p.mu.Unlock()

	if p.fullnode {
		if err := p.client.PostPing(addr, p.listenPort); err != nil {
			p.log.WithField("peer", addr).WithError(err).Debug("reciprocal ping failed")
		}
	}
	return true
}

// Remove drops addr from the active set.
func (p *PeerPool) Remove(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, addr)
}

// AddSeeds admits every configured seed address at start-up.
func (p *PeerPool) AddSeeds(seeds []string) {
	for _, s := range seeds {
		p.Add(s)
	}
}

// HealthCheck runs one round of peer maintenance: discover new peers via
// each active peer's own peer list, liveness-probe every active peer
// (demoting failures to inactive), and attempt re-admission of every
// inactive peer.
func (p *PeerPool) HealthCheck() {
	for _, addr := range p.Active() {
		if len(p.Active()) >= maxActivePeers {
			break
		}
		peers, err := p.client.GetPeers(addr)
		if err != nil {
			continue
		}
		for _, candidate := range peers {
			p.Add(candidate)
		}
	}

	for _, addr := range p.Active() {
		if !p.client.Ping(addr) {
			p.mu.Lock()
			delete(p.active, addr)
			p.inactive[addr] = struct{}{}
			p.mu.Unlock()
			p.log.WithField("peer", addr).Info("peer moved to inactive")
		}
	}

	p.mu.RLock()
	candidates := make([]string, 0, len(p.inactive))
	for addr := range p.inactive {
		candidates = append(candidates, addr)
	}
	p.mu.RUnlock()

	for _, addr := range candidates {
		if p.Add(addr) {
			p.mu.Lock()
			delete(p.inactive, addr)
			p.mu.Unlock()
			p.log.WithField("peer", addr).Info("peer re-admitted to active")
		}
	}
}

// Broadcast posts payload to route on up to maxActivePeers peers
// (or all active peers if toAll is set); per-peer failures are
// swallowed.
func (p *PeerPool) Broadcast(route string, payload []byte, toAll bool) {
	peers := p.Active()
	limit := maxActivePeers
	if toAll {
		limit = len(peers)
	}
	for i, addr := range peers {
		if i >= limit {
			break
		}
		_ = p.client.PostRaw(addr, route, payload)
	}
}

// PeersWithBlockhash scans active peers for up to n whose /latest-block
// hash equals h — used to propagate mined blocks only to peers on the
// same fork.
func (p *PeerPool) PeersWithBlockhash(h string, n int) []string {
	var out []string
	for _, addr := range p.Active() {
		if len(out) >= n {
			break
		}
		block, err := p.client.GetLatestBlock(addr)
		if err != nil {
			continue
		}
		if block.Hash == h {
			out = append(out, addr)
		}
	}
	return out
}
