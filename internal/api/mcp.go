package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/learnbot/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session *session.Session
	Version string
}

// NewMCPServer creates an MCP server with the dialogue tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"learnbot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("learnbot asks questions about what it has learned and tracks how the user feels about each topic."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("learn",
			mcp.WithDescription("Teach the bot a text corpus under a category. Nouns become vocabulary and simple statements become questions."),
			mcp.WithString("category", mcp.Description("Category the corpus belongs to"), mcp.Required()),
			mcp.WithString("corpus", mcp.Description("Plain text to learn from"), mcp.Required()),
			mcp.WithString("bot", mcp.Description("Bot to teach (default: the selected bot)")),
		),
		mcpLearn(deps),
	)

	s.AddTool(
		mcp.NewTool("reply",
			mcp.WithDescription("Answer the bot's last question and receive the next one."),
			mcp.WithString("text", mcp.Description("The user's reply"), mcp.Required()),
			mcp.WithBoolean("skip", mcp.Description("Set when the question was not understood; the reply is not scored")),
		),
		mcpReply(deps),
	)

	s.AddTool(
		mcp.NewTool("analysis",
			mcp.WithDescription("Report per-category sentiment scores and how much of the bot's material the user has covered."),
		),
		mcpAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("switch_profile",
			mcp.WithDescription("Select the user and bot for the dialogue. Progress of the previous pair is kept in storage."),
			mcp.WithString("user", mcp.Description("User name"), mcp.Required()),
			mcp.WithString("bot", mcp.Description("Bot name"), mcp.Required()),
		),
		mcpSwitchProfile(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"dialogue://transcript",
			"Dialogue Transcript",
			mcp.WithResourceDescription("The current conversation and state machine position as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTranscript(deps),
	)

	return s
}

func mcpLearn(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}
		corpus, err := req.RequireString("corpus")
		if err != nil {
			return mcpError("corpus is required"), nil
		}

		res, err := deps.Session.Learn(ctx, session.LearnRequest{
			Bot:      req.GetString("bot", ""),
			Category: category,
			Corpus:   corpus,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("learning failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Learned %d new words and %d new questions for %s/%s.",
			res.AddedWords, res.AddedQuestions, res.Bot, res.Category)), nil
	}
}

func mcpReply(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		turn, err := deps.Session.Reply(ctx, session.Reply{
			Text: text,
			Skip: req.GetBool("skip", false),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("reply failed: %v", err)), nil
		}

		return mcpText(turn.Question), nil
	}
}

func mcpAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Session.Analysis())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal analysis: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSwitchProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("user")
		if err != nil {
			return mcpError("user is required"), nil
		}
		bot, err := req.RequireString("bot")
		if err != nil {
			return mcpError("bot is required"), nil
		}

		if _, err := deps.Session.Switch(ctx, user, bot); err != nil {
			return mcpError(fmt.Sprintf("switch failed: %v", err)), nil
		}

		return mcpText(session.Greeting(user)), nil
	}
}

func mcpResourceTranscript(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		user, bot := deps.Session.Profile()
		b, err := json.Marshal(DialogueView{
			User:       user,
			Bot:        bot,
			Dialogue:   deps.Session.Dialogue(),
			Transcript: deps.Session.Transcript(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transcript: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
