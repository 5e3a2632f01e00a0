package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/learnbot/internal/profile"
	"github.com/kalambet/learnbot/internal/session"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	app := newTestApp(t)
	return MCPDeps{Session: app.session, Version: "test"}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func mcpLearnCorpus(t *testing.T, deps MCPDeps) {
	t.Helper()
	req := makeCallToolRequest("learn", map[string]interface{}{
		"category": "testCat",
		"corpus":   testCorpus,
	})
	result, err := mcpLearn(deps)(context.Background(), req)
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if result.IsError {
		t.Fatalf("learn returned error: %s", toolText(t, result))
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(newTestMCPDeps(t)); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Learn(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpLearn(deps)

	req := makeCallToolRequest("learn", map[string]interface{}{
		"category": "testCat",
		"corpus":   testCorpus,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}
	want := "Learned 2 new words and 1 new questions for defaultBot/testCat."
	if got := toolText(t, result); got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

func TestMCPTool_Learn_MissingArgs(t *testing.T) {
	handler := mcpLearn(newTestMCPDeps(t))

	for _, args := range []map[string]interface{}{
		{"corpus": testCorpus},
		{"category": "testCat"},
	} {
		result, err := handler(context.Background(), makeCallToolRequest("learn", args))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

func TestMCPTool_Learn_CorpusFormat(t *testing.T) {
	handler := mcpLearn(newTestMCPDeps(t))

	req := makeCallToolRequest("learn", map[string]interface{}{
		"category": "testCat",
		"corpus":   "%% garbage",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "learning failed") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_Reply(t *testing.T) {
	deps := newTestMCPDeps(t)
	mcpLearnCorpus(t, deps)
	handler := mcpReply(deps)

	result, err := handler(context.Background(), makeCallToolRequest("reply", map[string]interface{}{"text": "hello"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != testQuestion {
		t.Errorf("question = %q, want %q", got, testQuestion)
	}

	// A skipped answer retires the question without scoring it.
	result, err = handler(context.Background(), makeCallToolRequest("reply", map[string]interface{}{
		"text": testCorpus,
		"skip": true,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}
	if a := deps.Session.Analysis(); a.Categories[0].Score != 0 {
		t.Errorf("skipped reply was scored: %+v", a.Categories)
	}
}

func TestMCPTool_Reply_Empty(t *testing.T) {
	handler := mcpReply(newTestMCPDeps(t))

	for _, args := range []map[string]interface{}{{}, {"text": "   "}} {
		result, err := handler(context.Background(), makeCallToolRequest("reply", args))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

func TestMCPTool_Analysis(t *testing.T) {
	deps := newTestMCPDeps(t)
	mcpLearnCorpus(t, deps)
	reply := mcpReply(deps)
	for _, text := range []string{"hello", testCorpus} {
		if _, err := reply(context.Background(), makeCallToolRequest("reply", map[string]interface{}{"text": text})); err != nil {
			t.Fatalf("reply: %v", err)
		}
	}

	result, err := mcpAnalysis(deps)(context.Background(), makeCallToolRequest("analysis", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var a session.Analysis
	if err := json.Unmarshal([]byte(toolText(t, result)), &a); err != nil {
		t.Fatalf("parsing analysis: %v", err)
	}
	if a.User != profile.DefaultUser || len(a.Categories) != 1 || a.Categories[0].Score != 3 {
		t.Errorf("analysis = %+v", a)
	}
}

func TestMCPTool_SwitchProfile(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpSwitchProfile(deps)

	req := makeCallToolRequest("switch_profile", map[string]interface{}{
		"user": "ann",
		"bot":  "tutor",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != session.Greeting("ann") {
		t.Errorf("text = %q", got)
	}
	if user, bot := deps.Session.Profile(); user != "ann" || bot != "tutor" {
		t.Errorf("Profile = %s/%s", user, bot)
	}

	req = makeCallToolRequest("switch_profile", map[string]interface{}{
		"user": "a/b",
		"bot":  "tutor",
	})
	result, err = handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for invalid user")
	}
}

func TestMCPResource_Transcript(t *testing.T) {
	deps := newTestMCPDeps(t)
	mcpLearnCorpus(t, deps)
	if _, err := mcpReply(deps)(context.Background(), makeCallToolRequest("reply", map[string]interface{}{"text": "hello"})); err != nil {
		t.Fatalf("reply: %v", err)
	}

	contents, err := mcpResourceTranscript(deps)(context.Background(), makeReadResourceRequest("dialogue://transcript"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "dialogue://transcript" || tc.MIMEType != "application/json" {
		t.Errorf("URI = %q, MIMEType = %q", tc.URI, tc.MIMEType)
	}

	var v DialogueView
	if err := json.Unmarshal([]byte(tc.Text), &v); err != nil {
		t.Fatalf("parsing transcript: %v", err)
	}
	if len(v.Transcript) != 3 || v.Transcript[2].Text != testQuestion {
		t.Errorf("transcript = %+v", v.Transcript)
	}
	if v.Dialogue.State != session.AwaitingAnswer || v.Dialogue.Pending != testQuestion {
		t.Errorf("dialogue = %+v", v.Dialogue)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps := newTestMCPDeps(t)
	mcpLearnCorpus(t, deps)

	replyHandler := mcpReply(deps)
	analysisHandler := mcpAnalysis(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("reply", map[string]interface{}{"text": "hello"})
			if _, err := replyHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := analysisHandler(context.Background(), makeCallToolRequest("analysis", nil)); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}
