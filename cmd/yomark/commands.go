package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/yomark/internal/config"
)

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Save a bookmark",
	Long: `Save a bookmark.

Examples:
  yomark add https://go.dev/blog/errors --title "Working with Errors" --keywords errors,wrapping
  yomark add https://example.com --title Example --folder dev/reading --tags later`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		folder, _ := cmd.Flags().GetString("folder")
		storage, _ := cmd.Flags().GetString("storage")
		keywords, _ := cmd.Flags().GetString("keywords")
		tags, _ := cmd.Flags().GetString("tags")

		if title == "" {
			return fmt.Errorf("--title is required")
		}

		req := map[string]any{
			"url":   args[0],
			"title": title,
		}
		if description != "" {
			req["description"] = description
		}
		if folder != "" {
			req["folder_path"] = folder
		}
		if storage != "" {
			req["storage"] = storage
		}
		if kw := splitList(keywords); kw != nil {
			req["keywords"] = kw
		}
		if tg := splitList(tags); tg != nil {
			req["tags"] = tg
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/bookmarks", req)
		if err != nil {
			return err
		}

		var result struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Saved bookmark %s (%s)", result.ID, result.Title)
		return nil
	},
}

func init() {
	addCmd.Flags().String("title", "", "bookmark title (required)")
	addCmd.Flags().String("description", "", "longer description")
	addCmd.Flags().String("folder", "", "folder path, e.g. dev/golang")
	addCmd.Flags().String("storage", "", "storage location name (default: current)")
	addCmd.Flags().String("keywords", "", "comma-separated recall keywords (max 4)")
	addCmd.Flags().String("tags", "", "comma-separated tags")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, _ := cmd.Flags().GetString("storage")
		folder, _ := cmd.Flags().GetString("folder")
		includeDeleted, _ := cmd.Flags().GetBool("deleted")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if storage != "" {
			q.Set("storage", storage)
		}
		if folder != "" {
			q.Set("folder", folder)
		}
		if includeDeleted {
			q.Set("include_deleted", "true")
		}

		resp, err := client.get("/bookmarks?" + q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Bookmarks []bookmarkView `json:"bookmarks"`
			Total     int            `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Total == 0 {
			fmt.Println("No bookmarks found.")
			return nil
		}

		for _, b := range result.Bookmarks {
			marker := ""
			if b.Deleted {
				marker = colorize(colorRed, " [deleted]")
			}
			title := b.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %s%s\n    %s\n",
				colorize(colorCyan, b.ID[:8]),
				colorize(colorBold, title),
				marker,
				b.URL,
			)
		}
		return nil
	},
}

type bookmarkView struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	FolderPath  string   `json:"folder_path"`
	Storage     string   `json:"storage_location"`
	Deleted     bool     `json:"deleted"`
}

func init() {
	listCmd.Flags().String("storage", "", "filter by storage location")
	listCmd.Flags().String("folder", "", "filter by folder path")
	listCmd.Flags().Bool("deleted", false, "include soft-deleted bookmarks")
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single bookmark as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/bookmarks/" + args[0])
		if err != nil {
			return err
		}

		var b any
		if err := decodeJSON(resp, &b); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	},
}

// --- update ---

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update bookmark fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{}
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			req["title"] = v
		}
		if cmd.Flags().Changed("url") {
			v, _ := cmd.Flags().GetString("url")
			req["url"] = v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			req["description"] = v
		}
		if cmd.Flags().Changed("folder") {
			v, _ := cmd.Flags().GetString("folder")
			req["folder_path"] = v
		}
		if cmd.Flags().Changed("keywords") {
			v, _ := cmd.Flags().GetString("keywords")
			req["keywords"] = splitList(v)
		}
		if cmd.Flags().Changed("tags") {
			v, _ := cmd.Flags().GetString("tags")
			req["tags"] = splitList(v)
		}
		if len(req) == 0 {
			return fmt.Errorf("no fields to update; pass at least one flag")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch("/bookmarks/"+args[0], req)
		if err != nil {
			return err
		}

		var result struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Updated bookmark %s", result.ID)
		return nil
	},
}

func init() {
	updateCmd.Flags().String("title", "", "new title")
	updateCmd.Flags().String("url", "", "new URL")
	updateCmd.Flags().String("description", "", "new description")
	updateCmd.Flags().String("folder", "", "new folder path")
	updateCmd.Flags().String("keywords", "", "comma-separated keywords (replaces existing)")
	updateCmd.Flags().String("tags", "", "comma-separated tags (replaces existing)")
}

// --- delete / restore ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a bookmark (soft by default)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hard, _ := cmd.Flags().GetBool("hard")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/bookmarks/" + args[0]
		if hard {
			path += "?hard=true"
		}

		resp, err := client.delete(path)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if hard {
			printSuccess("Permanently deleted bookmark %s", args[0])
		} else {
			printSuccess("Deleted bookmark %s (restore with: yomark restore %s)", args[0], args[0])
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a soft-deleted bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/bookmarks/"+args[0]+"/restore", nil)
		if err != nil {
			return err
		}

		var result struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Restored bookmark %s (%s)", result.ID, result.Title)
		return nil
	},
}

func init() {
	deleteCmd.Flags().Bool("hard", false, "permanently remove the bookmark file (requires prior soft delete)")
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search bookmarks with hybrid lexical and semantic scoring",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		scope, _ := cmd.Flags().GetString("scope")
		folder, _ := cmd.Flags().GetString("folder")
		limit, _ := cmd.Flags().GetInt("limit")
		includeDeleted, _ := cmd.Flags().GetBool("deleted")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"query": query}
		if scope != "" {
			req["scope"] = scope
		}
		if folder != "" {
			req["folder"] = folder
		}
		if limit > 0 {
			req["limit"] = limit
		}
		if includeDeleted {
			req["include_deleted"] = true
		}

		resp, err := client.post("/recall/query", req)
		if err != nil {
			return err
		}

		var result struct {
			Mode           string `json:"mode"`
			FallbackReason string `json:"fallback_reason"`
			Results        []struct {
				Bookmark      bookmarkView `json:"bookmark"`
				Score         float64      `json:"score"`
				Snippet       string       `json:"snippet"`
				MatchedFields []string     `json:"matched_fields"`
			} `json:"results"`
			TotalReturned int `json:"total_returned"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.FallbackReason != "" {
			printWarning("lexical-only results (%s)", result.FallbackReason)
		}

		if result.TotalReturned == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range result.Results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("%d. %s", i+1, r.Bookmark.Title)), r.Score)
			fmt.Printf("  %s\n", r.Bookmark.URL)
			if r.Snippet != "" && r.Snippet != r.Bookmark.Title {
				fmt.Printf("  %s\n", r.Snippet)
			}
			if len(r.MatchedFields) > 0 {
				fmt.Printf("  matched: %s\n", strings.Join(r.MatchedFields, ", "))
			}
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().String("scope", "", "search scope: all, current, or a storage name")
	recallCmd.Flags().String("folder", "", "restrict to a folder path")
	recallCmd.Flags().Int("limit", 0, "maximum number of results")
	recallCmd.Flags().Bool("deleted", false, "include soft-deleted bookmarks")
}

// --- storages ---

var storagesCmd = &cobra.Command{
	Use:   "storages",
	Short: "Manage storage locations",
}

var storagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List storage locations and their record counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/storages")
		if err != nil {
			return err
		}

		var result struct {
			Storages []struct {
				Name      string `json:"name"`
				Current   bool   `json:"current"`
				Total     int    `json:"total"`
				Active    int    `json:"active"`
				Deleted   int    `json:"deleted"`
				Errors    int    `json:"load_errors"`
				Conflicts int    `json:"conflicts"`
			} `json:"storages"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, s := range result.Storages {
			marker := ""
			if s.Current {
				marker = colorize(colorGreen, " (current)")
			}
			fmt.Printf("%s%s  %d active, %d deleted", colorize(colorBold, s.Name), marker, s.Active, s.Deleted)
			if s.Errors > 0 {
				fmt.Printf(", %s", colorize(colorRed, fmt.Sprintf("%d load errors", s.Errors)))
			}
			if s.Conflicts > 0 {
				fmt.Printf(", %s", colorize(colorYellow, fmt.Sprintf("%d conflicts", s.Conflicts)))
			}
			fmt.Println()
		}
		return nil
	},
}

var storagesAddCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Register a new storage location in the config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.AddStorage(config.StorageLocation{Name: args[0], Path: args[1]}); err != nil {
			return err
		}
		printSuccess("Added storage %s at %s (restart the server to pick it up)", args[0], args[1])
		return nil
	},
}

var storagesRebuildCmd = &cobra.Command{
	Use:   "rebuild <name>",
	Short: "Rescan a storage location from disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/storages/"+args[0]+"/rebuild", nil)
		if err != nil {
			return err
		}

		var result struct {
			Storage    string `json:"storage"`
			Total      int    `json:"total"`
			LoadErrors int    `json:"load_errors"`
			Conflicts  int    `json:"conflicts"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Rebuilt %s: %d records", result.Storage, result.Total)
		if result.LoadErrors > 0 {
			printWarning("%d records could not be loaded; check the server log", result.LoadErrors)
		}
		if result.Conflicts > 0 {
			printWarning("%d duplicate IDs resolved by newest timestamp", result.Conflicts)
		}
		return nil
	},
}

func init() {
	storagesCmd.AddCommand(storagesListCmd)
	storagesCmd.AddCommand(storagesAddCmd)
	storagesCmd.AddCommand(storagesRebuildCmd)
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
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
