package services

import (
	"testing"
	"time"

	"quizduel/models"

	"gorm.io/gorm"
)

func newTestMatchmaker(t *testing.T) (*Matchmaker, *GameService, *gorm.DB) {
	t.Helper()
	svc, db := newTestGameService(t)
	return NewMatchmaker(svc), svc, db
}

func TestFindOrCreateOpensGameWhenPoolEmpty(t *testing.T) {
	mm, _, db := newTestMatchmaker(t)
	p1 := createTestUser(t, db, "alice")
	seedQuestions(t, db, QuestionsPerGame, "")

	res, err := mm.FindOrCreate(p1.ID)
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if !res.Waiting {
		t.Fatal("expected to wait with no opponents around")
	}
	if res.Game.Status != models.GamePending {
		t.Errorf("expected PENDING, got %s", res.Game.Status)
	}
	if len(res.Questions) != 0 {
		t.Errorf("waiting result carried %d questions", len(res.Questions))
	}
}

func TestFindOrCreateJoinsLiveSeeker(t *testing.T) {
	mm, _, db := newTestMatchmaker(t)
	p1 := createTestUser(t, db, "alice")
	p2 := createTestUser(t, db, "bob")
	seedQuestions(t, db, QuestionsPerGame+2, "")

	first, err := mm.FindOrCreate(p1.ID)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}

	second, err := mm.FindOrCreate(p2.ID)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if second.Waiting {
		t.Fatal("second seeker should have matched, not waited")
	}
	if second.Game.ID != first.Game.ID {
		t.Errorf("matched into %s, want %s", second.Game.ID, first.Game.ID)
	}
	if second.Game.Status != models.GameActive {
		t.Errorf("expected ACTIVE, got %s", second.Game.Status)
	}
	if len(second.Questions) != QuestionsPerGame {
		t.Errorf("match carried %d questions, want %d", len(second.Questions), QuestionsPerGame)
	}

	// Both sides are out of the seeker pool.
	if mm.creatorIsLive(p1.ID) || mm.creatorIsLive(p2.ID) {
		t.Error("matched players still tracked as seekers")
	}
}

func TestFindOrCreateSkipsExpiredSeeker(t *testing.T) {
	mm, _, db := newTestMatchmaker(t)
	p1 := createTestUser(t, db, "alice")
	p2 := createTestUser(t, db, "bob")
	seedQuestions(t, db, QuestionsPerGame, "")

	first, err := mm.FindOrCreate(p1.ID)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	mm.setSeekerSeen(p1.ID, time.Now().Add(-SeekerLivenessWindow-time.Second))

	second, err := mm.FindOrCreate(p2.ID)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if !second.Waiting {
		t.Fatal("should not join a game whose creator went quiet")
	}
	if second.Game.ID == first.Game.ID {
		t.Error("joined the expired seeker's game")
	}
}

func TestFindOrCreateReplacesOwnOpenGame(t *testing.T) {
	mm, _, db := newTestMatchmaker(t)
	p1 := createTestUser(t, db, "alice")
	seedQuestions(t, db, QuestionsPerGame, "")

	first, err := mm.FindOrCreate(p1.ID)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	second, err := mm.FindOrCreate(p1.ID)
	if err != nil {
		t.Fatalf("repeat search: %v", err)
	}
	if second.Game.ID == first.Game.ID {
		t.Fatal("repeat search reused the old listing")
	}

	var old models.Game
	if err := db.First(&old, "id = ?", first.Game.ID).Error; err != nil {
		t.Fatalf("reload first game: %v", err)
	}
	if old.Status != models.GameCancelled {
		t.Errorf("old listing should be CANCELLED, got %s", old.Status)
	}
}

func TestCancelSearch(t *testing.T) {
	mm, _, db := newTestMatchmaker(t)
	p1 := createTestUser(t, db, "alice")
	seedQuestions(t, db, QuestionsPerGame, "")

	res, err := mm.FindOrCreate(p1.ID)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	cancelled, err := mm.CancelSearch(p1.ID)
	if err != nil {
		t.Fatalf("cancel search: %v", err)
	}
	if cancelled != 1 {
		t.Errorf("cancelled %d games, want 1", cancelled)
	}
	if mm.creatorIsLive(p1.ID) {
		t.Error("cancelled seeker still tracked")
	}

	var game models.Game
	db.First(&game, "id = ?", res.Game.ID)
	if game.Status != models.GameCancelled {
		t.Errorf("expected CANCELLED, got %s", game.Status)
	}
}

func TestSweepCancelsStaleGamesAndEvictsSeekers(t *testing.T) {
	mm, _, db := newTestMatchmaker(t)
	p1 := createTestUser(t, db, "alice")
	p2 := createTestUser(t, db, "bob")
	seedQuestions(t, db, QuestionsPerGame, "")

	stale, err := mm.FindOrCreate(p1.ID)
	if err != nil {
		t.Fatalf("stale search: %v", err)
	}
	// Age p1 past the liveness window so p2's search opens its own game
	// instead of joining.
	mm.setSeekerSeen(p1.ID, time.Now().Add(-SeekerLivenessWindow-time.Second))
	fresh, err := mm.FindOrCreate(p2.ID)
	if err != nil {
		t.Fatalf("fresh search: %v", err)
	}
	if !fresh.Waiting {
		t.Fatal("fresh search unexpectedly matched")
	}

	backdated := time.Now().Add(-StaleGameWindow - time.Minute)
	if err := db.Model(&models.Game{}).Where("id = ?", stale.Game.ID).
		Update("created_at", backdated).Error; err != nil {
		t.Fatalf("backdate game: %v", err)
	}
	mm.setSeekerSeen(p1.ID, time.Now().Add(-SeekerEvictAfter-time.Minute))

	mm.Sweep()

	var staleGame, freshGame models.Game
	db.First(&staleGame, "id = ?", stale.Game.ID)
	db.First(&freshGame, "id = ?", fresh.Game.ID)
	if staleGame.Status != models.GameCancelled {
		t.Errorf("stale game should be CANCELLED, got %s", staleGame.Status)
	}
	if freshGame.Status != models.GamePending {
		t.Errorf("fresh game should survive the sweep, got %s", freshGame.Status)
	}

	mm.mu.Lock()
	_, p1Tracked := mm.seekers[p1.ID]
	_, p2Tracked := mm.seekers[p2.ID]
	mm.mu.Unlock()
	if p1Tracked {
		t.Error("inactive seeker survived eviction")
	}
	if !p2Tracked {
		t.Error("active seeker was evicted")
	}
}
