package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent opens the same database twice and verifies no
// migration is applied a second time.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected at least two applied migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_jobs_status_run_after", "idx_corpora_bot_created", "idx_turns_profile"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestProfileKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetProfileKeys("bot/tutor", map[string]string{"categories": "go|sql"}); err != nil {
		t.Fatalf("SetProfileKeys: %v", err)
	}
	got, err := s.GetProfileKey("bot/tutor", "categories")
	if err != nil {
		t.Fatalf("GetProfileKey: %v", err)
	}
	if got != "go|sql" {
		t.Errorf("value = %q, want %q", got, "go|sql")
	}

	// Overwrite.
	if err := s.SetProfileKeys("bot/tutor", map[string]string{"categories": "go"}); err != nil {
		t.Fatalf("SetProfileKeys overwrite: %v", err)
	}
	got, _ = s.GetProfileKey("bot/tutor", "categories")
	if got != "go" {
		t.Errorf("after overwrite value = %q, want %q", got, "go")
	}
}

func TestReplaceProfileKeys_DropsMissingKeys(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetProfileKeys("user/ann/tutor", map[string]string{"answered.pets": "Do you like cats?", "counter.pets": "-7"}); err != nil {
		t.Fatalf("SetProfileKeys: %v", err)
	}
	if err := s.SetProfileKeys("user/bob/tutor", map[string]string{"counter.pets": "3"}); err != nil {
		t.Fatalf("SetProfileKeys: %v", err)
	}

	if err := s.ReplaceProfileKeys("user/ann/tutor", map[string]string{"counter.food": "2"}); err != nil {
		t.Fatalf("ReplaceProfileKeys: %v", err)
	}
	ann, err := s.GetAllProfileKeys("user/ann/tutor")
	if err != nil {
		t.Fatalf("GetAllProfileKeys: %v", err)
	}
	if len(ann) != 1 || ann["counter.food"] != "2" {
		t.Errorf("ann = %v, want only counter.food=2", ann)
	}

	bob, _ := s.GetAllProfileKeys("user/bob/tutor")
	if bob["counter.pets"] != "3" {
		t.Errorf("other scope changed: %v", bob)
	}

	if err := s.ReplaceProfileKeys("user/ann/tutor", nil); err != nil {
		t.Fatalf("ReplaceProfileKeys empty: %v", err)
	}
	if ann, _ := s.GetAllProfileKeys("user/ann/tutor"); len(ann) != 0 {
		t.Errorf("after empty replace = %v, want empty scope", ann)
	}
}

func TestGetProfileKey_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetProfileKey("settings", "users")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProfileKeys_ScopesAreIsolated(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetProfileKeys("user/ann/tutor", map[string]string{"counter.go": "2", "words.used": "goroutine"}); err != nil {
		t.Fatalf("SetProfileKeys: %v", err)
	}
	if err := s.SetProfileKeys("user/bob/tutor", map[string]string{"counter.go": "-1"}); err != nil {
		t.Fatalf("SetProfileKeys: %v", err)
	}

	ann, err := s.GetAllProfileKeys("user/ann/tutor")
	if err != nil {
		t.Fatalf("GetAllProfileKeys: %v", err)
	}
	if len(ann) != 2 {
		t.Fatalf("ann has %d keys, want 2: %v", len(ann), ann)
	}
	if ann["counter.go"] != "2" {
		t.Errorf("ann counter.go = %q, want %q", ann["counter.go"], "2")
	}

	bob, err := s.GetAllProfileKeys("user/bob/tutor")
	if err != nil {
		t.Fatalf("GetAllProfileKeys: %v", err)
	}
	if bob["counter.go"] != "-1" {
		t.Errorf("bob counter.go = %q, want %q", bob["counter.go"], "-1")
	}

	empty, err := s.GetAllProfileKeys("user/nobody/tutor")
	if err != nil {
		t.Fatalf("GetAllProfileKeys: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown scope has keys: %v", empty)
	}
}

func TestSetProfileKeys_Empty(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetProfileKeys("settings", nil); err != nil {
		t.Errorf("SetProfileKeys(nil) = %v, want nil", err)
	}
}

func TestSaveAndGetCorpus(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Corpus{
		ID:        "c-1",
		Bot:       "tutor",
		Category:  "pets",
		Title:     "notes.txt",
		Source:    "file",
		Content:   "i love programming and cats.",
		CreatedAt: now,
	}
	if err := s.SaveCorpus(want); err != nil {
		t.Fatalf("SaveCorpus: %v", err)
	}

	got, err := s.GetCorpus("c-1")
	if err != nil {
		t.Fatalf("GetCorpus: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt = want.CreatedAt
	if got != want {
		t.Errorf("GetCorpus = %+v, want %+v", got, want)
	}

	if _, err := s.GetCorpus("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCorpus(missing) err = %v, want ErrNotFound", err)
	}
}

func TestListCorpora_FilterByBot(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i, bot := range []string{"tutor", "quiz", "tutor"} {
		c := Corpus{
			ID:        fmt.Sprintf("c-%d", i),
			Bot:       bot,
			Category:  "go",
			Content:   "text",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveCorpus(c); err != nil {
			t.Fatalf("SaveCorpus: %v", err)
		}
	}

	tutor, err := s.ListCorpora("tutor", 10)
	if err != nil {
		t.Fatalf("ListCorpora: %v", err)
	}
	if len(tutor) != 2 {
		t.Fatalf("tutor corpora = %d, want 2", len(tutor))
	}
	if tutor[0].ID != "c-2" {
		t.Errorf("newest corpus = %q, want c-2", tutor[0].ID)
	}

	all, err := s.ListCorpora("", 10)
	if err != nil {
		t.Fatalf("ListCorpora: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all corpora = %d, want 3", len(all))
	}
}

func TestSaveAndGetRecentTurns(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	turns := []Turn{
		{ID: "t1", CreatedAt: now, User: "ann", Bot: "tutor", Reply: "hi", Question: "Do you love cats?"},
		{ID: "t2", CreatedAt: now, User: "ann", Bot: "tutor", Category: "pets", Reply: "yes", Skipped: true, Answered: "Do you love cats?", Question: "Tell me more."},
		{ID: "t3", CreatedAt: now, User: "bob", Bot: "tutor", Reply: "hello", Question: "Tell me more."},
	}
	for _, tr := range turns {
		if err := s.SaveTurn(tr); err != nil {
			t.Fatalf("SaveTurn(%s): %v", tr.ID, err)
		}
	}

	got, err := s.GetRecentTurns("ann", "tutor", 10)
	if err != nil {
		t.Fatalf("GetRecentTurns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("turns = %d, want 2", len(got))
	}
	// Same timestamp: insertion order decides.
	if got[0].ID != "t2" || got[1].ID != "t1" {
		t.Errorf("order = [%s %s], want [t2 t1]", got[0].ID, got[1].ID)
	}
	if !got[0].Skipped {
		t.Error("t2 Skipped = false, want true")
	}
	if got[0].Answered != "Do you love cats?" {
		t.Errorf("t2 Answered = %q", got[0].Answered)
	}

	limited, err := s.GetRecentTurns("ann", "tutor", 1)
	if err != nil {
		t.Fatalf("GetRecentTurns: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited turns = %d, want 1", len(limited))
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        "learn_corpus",
		PayloadJSON: `{"corpus_id":"c1"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"learn_corpus"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.PayloadJSON != `{"corpus_id":"c1"}` {
		t.Errorf("PayloadJSON = %q", got.PayloadJSON)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}

	again, err := s.ClaimNextJob([]string{"learn_corpus"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("running job claimed twice: %+v", again)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"learn_corpus"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-future",
		Type:        "learn_corpus",
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(time.Hour),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"learn_corpus"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-a", Type: "a", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-b", Type: "b", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"b"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil || got.Type != "b" {
		t.Errorf("claimed %+v, want type b", got)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-done", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if err := s.CompleteJob("j-done"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	j, err := s.GetJob("j-done")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != "completed" {
		t.Errorf("status = %q, want completed", j.Status)
	}

	if err := s.CompleteJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestFailJob_SetsBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-retry", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	before := time.Now().UTC().Truncate(time.Second)
	if err := s.FailJob("j-retry", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	j, err := s.GetJob("j-retry")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != "pending" {
		t.Errorf("status = %q, want pending", j.Status)
	}
	if j.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", j.Attempts)
	}
	if j.LastError != "boom" {
		t.Errorf("last_error = %q, want boom", j.LastError)
	}
	if j.RunAfter.Before(before.Add(2 * time.Second)) {
		t.Errorf("run_after = %v, want at least 2s after %v", j.RunAfter, before)
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-max", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if err := s.FailJob("j-max", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	j, _ := s.GetJob("j-max")
	if j.Status != "failed" {
		t.Errorf("status = %q, want failed", j.Status)
	}
}

func TestFailJobPermanently(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-perm", Type: "x", PayloadJSON: `{}`, MaxAttempts: 5}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if err := s.FailJobPermanently("j-perm", "bad corpus"); err != nil {
		t.Fatalf("FailJobPermanently: %v", err)
	}
	j, _ := s.GetJob("j-perm")
	if j.Status != "failed" {
		t.Errorf("status = %q, want failed", j.Status)
	}
	if j.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", j.Attempts)
	}

	if err := s.FailJob("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob(missing) = %v, want ErrNotFound", err)
	}
}
