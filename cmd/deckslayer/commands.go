package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Bharath-code/deckslayer/internal/api"
	"github.com/Bharath-code/deckslayer/internal/config"
	"github.com/Bharath-code/deckslayer/internal/ledger"
	"github.com/Bharath-code/deckslayer/internal/storage"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <deck.pdf>",
	Short: "Upload a deck to a running server and print the audit report",
	Long: `Upload a deck to a running server and print the audit report.

Examples:
  deckslayer analyze ./deck.pdf --token $TOKEN
  deckslayer analyze ./deck.pdf --server https://deckslayer.example --atomic`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		atomic, _ := cmd.Flags().GetBool("atomic")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading deck: %w", err)
		}

		client, err := newAPIClient(serverURL, token)
		if err != nil {
			return err
		}

		path := "/analyze"
		if atomic {
			path += "?mode=atomic"
		}
		printStep("Convening the committee on %s...", filepath.Base(args[0]))
		resp, err := client.upload(cmd.Context(), path, map[string]namedFile{
			"file": {Name: filepath.Base(args[0]), Data: data},
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if atomic {
			var result struct {
				Report     json.RawMessage `json:"report"`
				AnalysisID string          `json:"analysis_id"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			if err := printJSON(out, result.Report); err != nil {
				return err
			}
			printSuccess("Analysis %s stored", result.AnalysisID)
			return nil
		}

		if err := checkStatus(resp); err != nil {
			return err
		}
		defer resp.Body.Close()
		id, err := readFrames(resp.Body, out)
		if err != nil {
			return err
		}
		printSuccess("Analysis %s stored", id)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("server", "", "server base URL (default: the configured listener)")
	analyzeCmd.Flags().String("token", os.Getenv("DECKSLAYER_TOKEN"), "bearer token (default $DECKSLAYER_TOKEN)")
	analyzeCmd.Flags().Bool("atomic", false, "wait for the whole report instead of streaming")
}

// streamFrame mirrors one line of the progressive response.
type streamFrame struct {
	Type       string          `json:"type"`
	Report     json.RawMessage `json:"report"`
	AnalysisID string          `json:"analysis_id"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// readFrames consumes an NDJSON analysis stream, reporting progress on
// stderr and writing the final report to out. It returns the analysis id.
func readFrames(r io.Reader, out io.Writer) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)

	partials := 0
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var f streamFrame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			return "", fmt.Errorf("decoding stream frame: %w", err)
		}
		switch f.Type {
		case "partial":
			partials++
			var p struct {
				HeadlineBurn string `json:"headline_burn"`
			}
			if json.Unmarshal(f.Report, &p) == nil && p.HeadlineBurn != "" && partials%10 == 1 {
				printStep("%s", p.HeadlineBurn)
			}
		case "final":
			if err := printJSON(out, f.Report); err != nil {
				return "", err
			}
			return f.AnalysisID, nil
		case "error":
			msg := "analysis failed"
			if f.Error != nil && f.Error.Message != "" {
				msg = f.Error.Message
			}
			return "", errors.New(msg)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}
	return "", fmt.Errorf("stream ended after %d partial reports without a final report", partials)
}

// --- rebut ---

var rebutCmd = &cobra.Command{
	Use:   "rebut",
	Short: "Answer a killer question and print the skeptic's judgement",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		question, _ := cmd.Flags().GetString("question")
		answer, _ := cmd.Flags().GetString("answer")
		if question == "" || answer == "" {
			return errors.New("--question and --answer are required")
		}

		client, err := newAPIClient(serverURL, "")
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/rebut", map[string]string{
			"question": question,
			"answer":   answer,
		})
		if err != nil {
			return err
		}
		var result struct {
			Judgement string `json:"judgement"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Judgement)
		return nil
	},
}

func init() {
	rebutCmd.Flags().String("server", "", "server base URL (default: the configured listener)")
	rebutCmd.Flags().String("question", "", "the killer question")
	rebutCmd.Flags().String("answer", "", "the founder's answer")
	rootCmd.AddCommand(rebutCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the caller's analyses, comparisons and credit balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient(serverURL, token)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}
		var hist struct {
			Balance  int `json:"balance"`
			Analyses []struct {
				ID               string `json:"id"`
				DeckName         string `json:"deck_name"`
				FundabilityScore int    `json:"fundability_score"`
				CreatedAt        string `json:"created_at"`
			} `json:"analyses"`
			Comparisons []struct {
				ID        string `json:"id"`
				DeckAName string `json:"deck_a_name"`
				DeckBName string `json:"deck_b_name"`
			} `json:"comparisons"`
		}
		if err := decodeJSON(resp, &hist); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printField(out, "Credits", "%d", hist.Balance)
		for _, a := range hist.Analyses {
			fmt.Fprintf(out, "%s  %3d  %s  %s\n", colorize(colorCyan, shortID(a.ID)), a.FundabilityScore, a.CreatedAt, a.DeckName)
		}
		for _, c := range hist.Comparisons {
			fmt.Fprintf(out, "%s  vs   %s / %s\n", colorize(colorCyan, shortID(c.ID)), c.DeckAName, c.DeckBName)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("server", "", "server base URL (default: the configured listener)")
	historyCmd.Flags().String("token", os.Getenv("DECKSLAYER_TOKEN"), "bearer token (default $DECKSLAYER_TOKEN)")
	historyCmd.Flags().Int("limit", 20, "maximum number of records per list")
	rootCmd.AddCommand(historyCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- credits ---

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect or grant credits directly in the datastore",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance <user-id>",
	Short: "Show a user's credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		bal, err := ledger.New(store).GetBalance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printField(cmd.OutOrStdout(), args[0], "%d credits", bal)
		return nil
	},
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant <user-id> <amount>",
	Short: "Append a grant entry to a user's ledger",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		amount, err := strconv.Atoi(args[1])
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer, got %q", args[1])
		}

		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		acc := ledger.New(store)
		if err := acc.Credit(cmd.Context(), args[0], amount, storage.LedgerGrant, reason); err != nil {
			return err
		}
		bal, err := acc.GetBalance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSuccess("Granted %d credits to %s (balance %d)", amount, args[0], bal)
		return nil
	},
}

var creditsHistoryCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "List a user's ledger entries, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := ledger.New(store).History(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No ledger entries.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %+4d  %-11s  %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Amount, e.Type, e.Reason)
		}
		return nil
	},
}

func init() {
	creditsGrantCmd.Flags().String("reason", "Operator grant", "ledger reason")
	creditsHistoryCmd.Flags().Int("limit", 50, "maximum number of entries")
	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsGrantCmd)
	creditsCmd.AddCommand(creditsHistoryCmd)
}

// --- trends ---

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Print market insight statistics from the datastore",
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetInt("tags")

		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		total, err := store.CountMarketInsights(ctx)
		if err != nil {
			return err
		}
		sectors, err := store.SectorStats(ctx)
		if err != nil {
			return err
		}
		counts, err := store.NarrativeTagCounts(ctx, tags)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printField(out, "Insights", "%d", total)
		if total == 0 {
			printWarning("no market insights yet; they are extracted by the serve worker after each analysis")
		}
		if len(sectors) > 0 {
			fmt.Fprintln(out, colorize(colorBold, "Sectors"))
			for _, s := range sectors {
				fmt.Fprintf(out, "  %-24s %4d  avg %.1f\n", s.Sector, s.Count, s.AvgFundability)
			}
		}
		if len(counts) > 0 {
			fmt.Fprintln(out, colorize(colorBold, "Narrative tags"))
			for _, c := range counts {
				fmt.Fprintf(out, "  %-24s %4d\n", c.Tag, c.Count)
			}
		}
		return nil
	},
}

func init() {
	trendsCmd.Flags().Int("tags", 20, "number of narrative tags to show")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve operator tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s := api.NewMCPServer(api.MCPDeps{Ledger: ledger.New(store), Records: store}, version)
		err = server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration (secrets hidden)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadLocal()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the config file",
	Args:  cobra.ExactArgs(2),
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
