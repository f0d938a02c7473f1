package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "yt-fetch",
		Short: "yt-fetch CLI - Media download orchestrator built on yt-dlp",
		Long:  `A command-line interface for submitting and managing media retrieval tasks.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelTranscodeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(historyCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Submit a download task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		url := args[0]
		format, _ := cmd.Flags().GetString("format")

		payload := map[string]string{
			"url": url,
		}
		if format != "" {
			payload["format"] = format
		}

		data, _ := json.Marshal(payload)
		resp, err := http.Post(serverURL+"/api/v1/tasks", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Task submitted successfully!\n")
		fmt.Printf("ID: %s\n", result["id"])
		fmt.Printf("Status: %s\n", result["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		url := serverURL + "/api/v1/tasks"
		if status != "" {
			url += "?status=" + status
		}

		resp, err := http.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var tasks []map[string]interface{}
		json.Unmarshal(body, &tasks)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tSTATUS\tPROGRESS\tCREATED")
		for _, task := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncate(stringField(task, "id"), 12),
				truncate(stringField(task, "url"), 40),
				task["status"],
				progressField(task),
				task["created_at"])
		}
		w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show task status and progress",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		resp, err := http.Get(serverURL + "/api/v1/tasks/" + id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var task map[string]interface{}
		json.Unmarshal(body, &task)

		fmt.Printf("Task Details:\n")
		fmt.Printf("  ID:       %s\n", task["id"])
		fmt.Printf("  URL:      %s\n", task["url"])
		fmt.Printf("  Status:   %s\n", task["status"])
		fmt.Printf("  Progress: %s\n", progressField(task))
		fmt.Printf("  Format:   %s\n", task["format"])
		fmt.Printf("  Created:  %s\n", task["created_at"])
		if task["filename"] != nil {
			fmt.Printf("  Filename: %s\n", task["filename"])
		}
		if task["file_path"] != nil {
			fmt.Printf("  File:     %s\n", task["file_path"])
		}
		if task["error"] != nil {
			fmt.Printf("  Error:    %s\n", task["error"])
		}
		if transcode, ok := task["transcode"].(map[string]interface{}); ok {
			fmt.Printf("  Transcode: %s (%.1f%%)\n",
				transcode["status"], floatField(transcode, "percent"))
		}
	},
}

var cancelTranscodeCmd = &cobra.Command{
	Use:   "cancel-transcode [id]",
	Short: "Cancel the task's transcode job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]
		deleteInput, _ := cmd.Flags().GetBool("delete-input")

		payload := map[string]bool{"delete_input": deleteInput}
		data, _ := json.Marshal(payload)

		resp, err := http.Post(serverURL+"/api/v1/tasks/"+id+"/transcode/cancel",
			"application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Transcode cancelled successfully")
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [id]",
	Short: "Remove a task record and its tracking state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]

		req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/tasks/"+id, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Task cleaned up successfully")
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List download history",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")

		url := serverURL + "/api/v1/history"
		if limit > 0 {
			url += fmt.Sprintf("?limit=%d", limit)
		}

		resp, err := http.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var entries []map[string]interface{}
		json.Unmarshal(body, &entries)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tDOWNLOADED")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				truncate(stringField(entry, "id"), 12),
				truncate(stringField(entry, "title"), 36),
				entry["status"],
				entry["downloaded_at"])
		}
		w.Flush()
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a history entry and its downloaded file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]

		req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/history/"+id, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("History entry deleted successfully")
	},
}

func init() {
	addCmd.Flags().StringP("format", "f", "", "Format selector passed to the extraction engine")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	cancelTranscodeCmd.Flags().Bool("delete-input", false, "Also delete the downloaded source file")
	historyCmd.Flags().IntP("limit", "n", 0, "Maximum number of entries to show")
	historyCmd.AddCommand(historyDeleteCmd)
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func progressField(task map[string]interface{}) string {
	progress, ok := task["progress"].(map[string]interface{})
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", floatField(progress, "percent"))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
