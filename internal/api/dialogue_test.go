package api

import (
	"net/http"
	"slices"
	"testing"

	"github.com/kalambet/learnbot/internal/profile"
	"github.com/kalambet/learnbot/internal/session"
)

func learnTestCorpus(t *testing.T, app *testApp) {
	t.Helper()
	w := app.do(t, http.MethodPost, "/learning", LearnRequest{Category: "testCat", Content: testCorpus})
	if w.Code != http.StatusOK {
		t.Fatalf("learning: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetDialogue_Initial(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/dialogue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	v := decodeBody[DialogueView](t, w)
	if v.User != profile.DefaultUser || v.Bot != profile.DefaultBot {
		t.Errorf("profile = %s/%s", v.User, v.Bot)
	}
	if len(v.Transcript) != 1 || v.Transcript[0].Text != session.Greeting(profile.DefaultUser) {
		t.Errorf("transcript = %+v", v.Transcript)
	}
}

func TestReply_Flow(t *testing.T) {
	app := newTestApp(t)
	learnTestCorpus(t, app)

	w := app.do(t, http.MethodPost, "/dialogue", session.Reply{Text: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	turn := decodeBody[session.Turn](t, w)
	if turn.Question != testQuestion || turn.Scored {
		t.Errorf("first turn = %+v", turn)
	}

	w = app.do(t, http.MethodPost, "/dialogue", session.Reply{Text: testCorpus})
	turn = decodeBody[session.Turn](t, w)
	if !turn.Scored || turn.Delta != 3 || turn.Answered != testQuestion {
		t.Errorf("second turn = %+v", turn)
	}

	w = app.do(t, http.MethodGet, "/turns?limit=5", nil)
	turns := decodeBody[[]turnView](t, w)
	if len(turns) != 2 || turns[0].Answered != testQuestion {
		t.Errorf("turns = %+v", turns)
	}

	w = app.do(t, http.MethodGet, "/analysis", nil)
	a := decodeBody[session.Analysis](t, w)
	if len(a.Categories) != 1 || a.Categories[0].Score != 3 {
		t.Errorf("analysis = %+v", a)
	}

	w = app.do(t, http.MethodPost, "/dialogue/reset", nil)
	if w.Code != http.StatusOK {
		t.Errorf("reset status = %d", w.Code)
	}
	if app.session.Dialogue().State != session.Idle {
		t.Error("reset did not return to idle")
	}
}

func TestReply_Empty(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/dialogue", session.Reply{Text: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReply_InvalidBody(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/dialogue", "not an object")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSettings_Switch(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/settings", SwitchRequest{User: "ann"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	s := decodeBody[profile.Settings](t, w)
	if s.CurrentUser != "ann" || s.CurrentBot != profile.DefaultBot {
		t.Errorf("settings = %+v", s)
	}

	w = app.do(t, http.MethodGet, "/settings", nil)
	s = decodeBody[profile.Settings](t, w)
	if !slices.Contains(s.Users, "ann") {
		t.Errorf("Users = %v", s.Users)
	}

	w = app.do(t, http.MethodPost, "/settings", SwitchRequest{User: "a/b"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid user status = %d, want 400", w.Code)
	}
}

func TestProfiles_ExportImport(t *testing.T) {
	app := newTestApp(t)
	learnTestCorpus(t, app)

	w := app.do(t, http.MethodGet, "/profiles/bot/"+profile.DefaultBot, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", w.Code, w.Body.String())
	}
	e := decodeBody[profile.Export](t, w)
	if e.Kind != profile.KindBot || e.Keys["categories"] != "testCat" {
		t.Errorf("export = %+v", e)
	}

	// Import under a new name, then into the bot in use.
	e.Name = "copy"
	w = app.do(t, http.MethodPost, "/profiles", e)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	if res := decodeBody[map[string]any](t, w); res["reloaded"] != false {
		t.Errorf("import response = %v", res)
	}
	bot, err := app.profiles.LoadBot("copy")
	if err != nil {
		t.Fatalf("LoadBot: %v", err)
	}
	if !bot.Questions.Get("testCat").Has(testQuestion) {
		t.Errorf("imported bot = %+v", bot)
	}

	e.Name = profile.DefaultBot
	w = app.do(t, http.MethodPost, "/profiles", e)
	if res := decodeBody[map[string]any](t, w); res["reloaded"] != true {
		t.Errorf("import response = %v", res)
	}
}

func TestProfiles_ExportUserDefaultsToCurrentBot(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/profiles/user/"+profile.DefaultUser, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decodeBody[profile.Export](t, w); e.Bot != profile.DefaultBot {
		t.Errorf("export bot = %q", e.Bot)
	}
}

func TestProfiles_InvalidKind(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/profiles/robot/x", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	w = app.do(t, http.MethodPost, "/profiles", profile.Export{Kind: "robot", Name: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
