package core

import "sync"

// SyncStatus reports the consensus engine's current block-download
// progress for the /sync-status endpoint. All fields are guarded by its
// own lock so HTTP handlers never block on the consensus loop.
type SyncStatus struct {
	mu sync.RWMutex

	syncing         bool
	progressCurrent uint64
	progressTarget  uint64
	downloadNode    string
	process         string
	speedPer100     float64
}

// NewSyncStatus returns an idle status.
func NewSyncStatus() *SyncStatus {
	return &SyncStatus{process: "idle"}
}

// Snapshot is the read-only view served over HTTP.
type Snapshot struct {
	Syncing              bool    `json:"syncing"`
	Progress             [2]uint64 `json:"progress"`
	DownloadNode         string  `json:"download_node"`
	Process              string  `json:"process"`
	SpeedPer100BlocksSec float64 `json:"speed_per_100_blocks_s"`
}

// Snapshot returns the current status.
func (s *SyncStatus) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Syncing:              s.syncing,
		Progress:             [2]uint64{s.progressCurrent, s.progressTarget},
		DownloadNode:         s.downloadNode,
		Process:              s.process,
		SpeedPer100BlocksSec: s.speedPer100,
	}
}

// BeginSync marks the node as catching up against peer, targeting
// targetHeight.
func (s *SyncStatus) BeginSync(peer string, current, target uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = true
	s.downloadNode = peer
	s.progressCurrent = current
	s.progressTarget = target
	s.process = "downloading blocks"
}

// UpdateProgress reports that current blocks have been downloaded so
// far, and the seconds per 100 blocks measured over the last download
// batch.
func (s *SyncStatus) UpdateProgress(current uint64, speedPer100BlocksSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressCurrent = current
	s.speedPer100 = speedPer100BlocksSec
}

// SetProcess records a human-readable description of the current
// consensus-loop activity (e.g. "validating block", "broadcasting").
func (s *SyncStatus) SetProcess(process string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.process = process
}

// EndSync marks the node as caught up.
func (s *SyncStatus) EndSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
	s.downloadNode = ""
	s.process = "idle"
}
