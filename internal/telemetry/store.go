package telemetry

import (
	"sync"
	"time"

	"joftmode/internal/gps"
	"joftmode/internal/imu"
	"joftmode/internal/infer"
)

// Store holds the latest inertial sample, position fix and classification.
// Each channel has its own presence flag. Values are copied in and out under
// the lock, so no caller ever holds a reference into the store.
type Store struct {
	mu sync.Mutex

	sample     imu.Sample
	haveSample bool

	fix     gps.PositionFix
	haveFix bool

	result     infer.Result
	haveResult bool

	updatedAt time.Time
}

func New() *Store {
	return &Store{}
}

func (s *Store) SetSample(sample imu.Sample) {
	s.mu.Lock()
	s.sample = sample
	s.haveSample = true
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *Store) LatestSample() (imu.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample, s.haveSample
}

func (s *Store) SetFix(fix gps.PositionFix) {
	s.mu.Lock()
	s.fix = fix
	s.haveFix = true
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *Store) LatestFix() (gps.PositionFix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix, s.haveFix
}

func (s *Store) SetResult(r infer.Result) {
	s.mu.Lock()
	s.result = r
	s.haveResult = true
	s.mu.Unlock()
}

func (s *Store) LatestResult() (infer.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.haveResult
}

// Snapshot is a consistent copy of all three channels.
type Snapshot struct {
	Sample    *imu.Sample      `json:"sample,omitempty"`
	Fix       *gps.PositionFix `json:"fix,omitempty"`
	Result    *infer.Result    `json:"result,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{UpdatedAt: s.updatedAt}
	if s.haveSample {
		v := s.sample
		snap.Sample = &v
	}
	if s.haveFix {
		v := s.fix
		snap.Fix = &v
	}
	if s.haveResult {
		v := s.result
		snap.Result = &v
	}
	return snap
}
