package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/learnbot/internal/api"
	"github.com/kalambet/learnbot/internal/config"
	"github.com/kalambet/learnbot/internal/profile"
	"github.com/kalambet/learnbot/internal/session"
)

// --- learn ---

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Teach the bot a corpus under a category",
	Long: `Teach the bot a corpus under a category. Nouns become vocabulary and
simple statements become questions.

Examples:
  learnbot learn --category pets --text "I love cats."
  learnbot learn --category go --url https://go.dev/doc/effective_go
  learnbot learn --category history --file ./notes.md --file ./paper.pdf --async`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildLearnRequest(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/learning", req)
		if err != nil {
			return err
		}

		if req.Async {
			var queued map[string]string
			if err := decodeJSON(resp, &queued); err != nil {
				return err
			}
			printSuccess("Queued job %s", queued["job_id"])
			return nil
		}

		var res session.LearnResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printSuccess("Learned %d new words and %d new questions for %s/%s",
			res.AddedWords, res.AddedQuestions, res.Bot, res.Category)
		fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d words and %d questions\n",
			res.Category, res.Words, res.Questions)
		return nil
	},
}

func buildLearnRequest(cmd *cobra.Command) (api.LearnRequest, error) {
	category, _ := cmd.Flags().GetString("category")
	bot, _ := cmd.Flags().GetString("bot")
	text, _ := cmd.Flags().GetString("text")
	rawURL, _ := cmd.Flags().GetString("url")
	files, _ := cmd.Flags().GetStringArray("file")
	title, _ := cmd.Flags().GetString("title")
	async, _ := cmd.Flags().GetBool("async")

	if strings.TrimSpace(category) == "" {
		return api.LearnRequest{}, fmt.Errorf("--category is required")
	}
	if text == "" && rawURL == "" && len(files) == 0 {
		return api.LearnRequest{}, fmt.Errorf("one of --text, --url, or --file is required")
	}

	req := api.LearnRequest{
		Bot:      bot,
		Category: category,
		Title:    title,
		Async:    async,
	}
	switch {
	case text != "":
		req.Type = api.SourceText
		req.Content = text
	case rawURL != "":
		req.Type = api.SourceURL
		req.URL = rawURL
	default:
		req.Type = api.SourceFile
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				return api.LearnRequest{}, fmt.Errorf("reading file: %w", err)
			}
			req.Files = append(req.Files, api.UploadedFile{
				Name:    filepath.Base(path),
				Content: base64.StdEncoding.EncodeToString(data),
			})
		}
	}
	return req, nil
}

func addLearnFlags(cmd *cobra.Command) {
	cmd.Flags().String("category", "", "category the corpus belongs to")
	cmd.Flags().String("bot", "", "bot to teach (default: the selected bot)")
	cmd.Flags().String("text", "", "text to learn from")
	cmd.Flags().String("url", "", "URL of a text, HTML or PDF document")
	cmd.Flags().StringArray("file", nil, "text, HTML or PDF file (repeatable)")
	cmd.Flags().String("title", "", "title recorded with the corpus")
	cmd.Flags().Bool("async", false, "queue the corpus and return immediately")
}

func init() {
	addLearnFlags(learnCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot",
	Long: `Talk to the bot. Each line you type answers the last question.

Start a line with "?" when you did not understand the question: the question
is dropped without scoring your reply. Type /quit to leave, /reset to start
over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runChat(cmd, client, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runChat(cmd *cobra.Command, client *apiClient, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()

	resp, err := client.get(ctx, "/dialogue")
	if err != nil {
		return err
	}
	var view api.DialogueView
	if err := decodeJSON(resp, &view); err != nil {
		return err
	}
	if n := len(view.Transcript); n > 0 {
		fmt.Fprintln(out, botLine(view.Transcript[n-1].Text))
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, colorize(colorBold, "> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			resp, err := client.post(ctx, "/dialogue/reset", nil)
			if err != nil {
				return err
			}
			var ignored map[string]string
			if err := decodeJSON(resp, &ignored); err != nil {
				return err
			}
			fmt.Fprintln(out, botLine(session.Greeting(view.User)))
			continue
		}

		reply := session.Reply{Text: line}
		if rest, ok := strings.CutPrefix(line, "?"); ok {
			reply.Skip = true
			reply.Text = strings.TrimSpace(rest)
			if reply.Text == "" {
				reply.Text = "?"
			}
		}

		resp, err := client.post(ctx, "/dialogue", reply)
		if err != nil {
			return err
		}
		var turn session.Turn
		if err := decodeJSON(resp, &turn); err != nil {
			printError("%v", err)
			continue
		}
		fmt.Fprintln(out, botLine(turn.Question))
	}
}

func botLine(text string) string {
	return colorize(colorCyan, "bot: ") + text
}

// --- analysis ---

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Show how you feel about each topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/analysis")
		if err != nil {
			return err
		}
		var a session.Analysis
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		}
		printAnalysis(cmd.OutOrStdout(), a)
		return nil
	},
}

func printAnalysis(out io.Writer, a session.Analysis) {
	fmt.Fprintf(out, "%s talking to %s\n\n", colorize(colorBold, a.User), colorize(colorBold, a.Bot))

	if len(a.Categories) == 0 {
		fmt.Fprintln(out, "The bot has not learned anything yet.")
		return
	}

	fmt.Fprintln(out, colorize(colorBold, "Interests"))
	for _, c := range a.Categories {
		pct := 0
		if a.ScoreTotal > 0 {
			pct = c.Score * 100 / a.ScoreTotal
		}
		fmt.Fprintf(out, "  %-20s %s %3d%%\n", c.Category, bar(c.Score, a.ScoreTotal, 20), pct)
	}

	fmt.Fprintf(out, "\n%s %d/%d\n", colorize(colorBold, "Covered"), a.UsedPotential, a.BotPotential)
	fmt.Fprintf(out, "  %s\n", bar(a.UsedPotential, a.BotPotential, 40))

	if len(a.Words) > 0 {
		fmt.Fprintf(out, "\n%s\n", colorize(colorBold, "Words"))
		for _, w := range a.Words {
			label := w.Sentiment.String()
			fmt.Fprintf(out, "  %-20s %s\n", w.Word, colorize(sentimentColor(label), label))
		}
	}
}

func init() {
	analysisCmd.Flags().Bool("json", false, "print the raw report as JSON")
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show known users and bots and the current selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}
		var s profile.Settings
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

var settingsSwitchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Select the user and bot for the dialogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		bot, _ := cmd.Flags().GetString("bot")
		if user == "" && bot == "" {
			return fmt.Errorf("one of --user or --bot is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/settings", api.SwitchRequest{User: user, Bot: bot})
		if err != nil {
			return err
		}
		var s profile.Settings
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSuccess("Now %s is talking to %s", s.CurrentUser, s.CurrentBot)
		return nil
	},
}

func printSettings(out io.Writer, s profile.Settings) {
	mark := func(name, current string) string {
		if name == current {
			return colorize(colorGreen, "* "+name)
		}
		return "  " + name
	}
	fmt.Fprintln(out, colorize(colorBold, "Users"))
	for _, u := range s.Users {
		fmt.Fprintln(out, mark(u, s.CurrentUser))
	}
	fmt.Fprintln(out, colorize(colorBold, "Bots"))
	for _, b := range s.Bots {
		fmt.Fprintln(out, mark(b, s.CurrentBot))
	}
}

func init() {
	settingsSwitchCmd.Flags().String("user", "", "user name (default: keep the current user)")
	settingsSwitchCmd.Flags().String("bot", "", "bot name (default: keep the current bot)")
	settingsCmd.AddCommand(settingsSwitchCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Export or import user and bot profiles",
}

var profileExportCmd = &cobra.Command{
	Use:   "export <user|bot> <name>",
	Short: "Export a profile as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, name := args[0], args[1]
		bot, _ := cmd.Flags().GetString("bot")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/profiles/" + url.PathEscape(kind) + "/" + url.PathEscape(name)
		if bot != "" {
			path += "?bot=" + url.QueryEscape(bot)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var e profile.Export
		if err := decodeJSON(resp, &e); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(e); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Profile exported to %s", output)
		}
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a profile exported with 'profile export'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var e profile.Export
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("invalid profile file: %w", err)
		}
		if name, _ := cmd.Flags().GetString("name"); name != "" {
			e.Name = name
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/profiles", e)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Imported %s profile %s", e.Kind, e.Name)
		if reloaded, _ := result["reloaded"].(bool); reloaded {
			printWarning("The profile is in use; the dialogue was restarted")
		}
		return nil
	},
}

func init() {
	profileExportCmd.Flags().String("bot", "", "bot a user profile belongs to (default: the selected bot)")
	profileExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	profileImportCmd.Flags().String("name", "", "import under a different name")
	profileCmd.AddCommand(profileExportCmd)
	profileCmd.AddCommand(profileImportCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent turns for the selected user and bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/turns?limit=%d", limit))
		if err != nil {
			return err
		}
		var turns []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Category  string `json:"category"`
			Reply     string `json:"reply"`
			Skipped   bool   `json:"skipped"`
			Question  string `json:"question"`
		}
		if err := decodeJSON(resp, &turns); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(turns) == 0 {
			fmt.Fprintln(out, "No turns recorded.")
			return nil
		}

		// Oldest first reads like a conversation.
		for i := len(turns) - 1; i >= 0; i-- {
			t := turns[i]
			reply := t.Reply
			if t.Skipped {
				reply += colorize(colorYellow, " (skipped)")
			}
			fmt.Fprintf(out, "%s  %s\n", colorize(colorCyan, t.CreatedAt), reply)
			fmt.Fprintf(out, "    %s\n", botLine(t.Question))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of turns to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
