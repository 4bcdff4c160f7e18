package services

import (
	"context"
	"log"
	"sync"
	"time"

	"quizduel/models"
)

// Seeker liveness and garbage-collection windows. A PENDING game is only
// worth joining while its creator is still actively searching.
const (
	SeekerLivenessWindow = 30 * time.Second
	SeekerEvictAfter     = 5 * time.Minute
	StaleGameWindow      = 10 * time.Minute
	SweepInterval        = 5 * time.Minute
)

// Matchmaker pairs a seeking player with an open game, or opens a new one.
// The seeker map is process-local and non-authoritative: losing it on
// restart only delays matches, it never corrupts persisted games.
type Matchmaker struct {
	games *GameService

	mu      sync.Mutex
	seekers map[string]time.Time
}

func NewMatchmaker(games *GameService) *Matchmaker {
	return &Matchmaker{
		games:   games,
		seekers: make(map[string]time.Time),
	}
}

// MatchResult is the outcome of one search: either an activated game with
// its question set, or a fresh PENDING game the seeker waits in.
type MatchResult struct {
	Game      *models.Game
	Questions []models.Question
	Waiting   bool
}

// FindOrCreate implements the search protocol: mark the seeker live, cancel
// their own leftover open games, then join the oldest open game whose
// creator is still searching, or create a new one. A candidate whose
// creator's liveness entry has expired is skipped, never joined; the sweep
// cancels it later.
func (m *Matchmaker) FindOrCreate(seekerID string) (*MatchResult, error) {
	m.markSeeking(seekerID)

	if cancelled, err := m.games.CancelPendingGamesFor(seekerID); err != nil {
		return nil, err
	} else if cancelled > 0 {
		log.Printf("Cancelled %d leftover open games for seeker %s", cancelled, seekerID)
	}

	candidate, err := m.games.FindOpenGame(seekerID)
	if err != nil {
		return nil, err
	}

	if candidate != nil && m.creatorIsLive(candidate.Player1ID) {
		joined, err := m.games.JoinGame(candidate.ID, seekerID)
		if err != nil {
			return nil, err
		}

		m.removeSeeker(seekerID)
		m.removeSeeker(joined.Player1ID)

		questions := make([]models.Question, 0, len(joined.Rounds))
		for _, round := range joined.Rounds {
			if round.Question != nil {
				questions = append(questions, *round.Question)
			}
		}
		return &MatchResult{Game: joined, Questions: questions}, nil
	}

	game, err := m.games.CreateGame(seekerID)
	if err != nil {
		return nil, err
	}
	return &MatchResult{Game: game, Waiting: true}, nil
}

// CancelSearch drops the seeker's liveness entry and cancels their open
// games. Returns how many games were cancelled.
func (m *Matchmaker) CancelSearch(seekerID string) (int64, error) {
	m.removeSeeker(seekerID)
	return m.games.CancelPendingGamesFor(seekerID)
}

// RemoveSeeker is the disconnect hook: drop liveness without touching games
// (the disconnect handler forfeits those itself).
func (m *Matchmaker) RemoveSeeker(seekerID string) {
	m.removeSeeker(seekerID)
}

func (m *Matchmaker) markSeeking(seekerID string) {
	m.mu.Lock()
	m.seekers[seekerID] = time.Now()
	m.mu.Unlock()
}

func (m *Matchmaker) removeSeeker(seekerID string) {
	m.mu.Lock()
	delete(m.seekers, seekerID)
	m.mu.Unlock()
}

func (m *Matchmaker) creatorIsLive(creatorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen, ok := m.seekers[creatorID]
	return ok && time.Since(seen) < SeekerLivenessWindow
}

// Run sweeps abandoned searches until ctx is cancelled. Start it with
// go mm.Run(ctx) next to the hub.
func (m *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep cancels stale open games and evicts seekers that stopped searching
// without saying so.
func (m *Matchmaker) Sweep() {
	cancelled, err := m.games.CancelStaleGames(StaleGameWindow)
	if err != nil {
		log.Printf("Matchmaking sweep failed to cancel stale games: %v", err)
	} else if cancelled > 0 {
		log.Printf("Matchmaking sweep cancelled %d stale open games", cancelled)
	}

	m.mu.Lock()
	for seekerID, seen := range m.seekers {
		if time.Since(seen) > SeekerEvictAfter {
			delete(m.seekers, seekerID)
			log.Printf("Evicted inactive seeker %s", seekerID)
		}
	}
	m.mu.Unlock()
}

// setSeekerSeen lets tests age a liveness entry.
func (m *Matchmaker) setSeekerSeen(seekerID string, seen time.Time) {
	m.mu.Lock()
	m.seekers[seekerID] = seen
	m.mu.Unlock()
}
