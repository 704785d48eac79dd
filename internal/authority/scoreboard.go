package authority

import "sync"

// Scoreboard keeps both players' scores. It is written by the main loop and
// read by diagnostics, so access is locked.
type Scoreboard struct {
	mu     sync.RWMutex
	scores [2]int
}

// AddScore credits points to owner. Unknown owners are ignored.
func (s *Scoreboard) AddScore(owner uint8, points int) {
	if owner > 1 {
		return
	}
	s.mu.Lock()
	s.scores[owner] += points
	s.mu.Unlock()
}

func (s *Scoreboard) ResetScores() {
	s.mu.Lock()
	s.scores = [2]int{}
	s.mu.Unlock()
}

// SetScores overwrites both scores with absolute values from the peer.
func (s *Scoreboard) SetScores(score0, score1 int) {
	s.mu.Lock()
	s.scores = [2]int{score0, score1}
	s.mu.Unlock()
}

func (s *Scoreboard) Score(id uint8) int {
	if id > 1 {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores[id]
}

func (s *Scoreboard) Scores() [2]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores
}

// Hooks exposes the scoreboard as resolver score hooks.
func (s *Scoreboard) Hooks() Hooks {
	return Hooks{
		AddScore:    s.AddScore,
		ResetScores: s.ResetScores,
		SetScores:   s.SetScores,
		Score:       s.Score,
	}
}
