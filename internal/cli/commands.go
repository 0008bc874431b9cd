package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/mnemo-dev/mnemo/internal/client"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/memory"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/spf13/cobra"
)

// openDB is a helper that opens the database for CLI commands running
// without a server.
func openDB() (*store.DB, error) {
	dbPath := os.Getenv("MNEMO_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

// withMemory runs fn against a locally opened store when no server is up.
func withMemory(fn func(*memory.Memory) error) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	return fn(memory.New(db))
}

// --- track command ---

var (
	trackTopic  string
	trackWeight float64
	trackMeta   string
)

var trackCmd = &cobra.Command{
	Use:   "track [type]",
	Short: "Record a user-action event",
	Long:  "Record an event like \"task:complete\". Goes through a running server when one is up, otherwise writes to the database directly.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrack,
}

func runTrack(cmd *cobra.Command, args []string) error {
	eventType := args[0]

	c := client.New()
	if c.Healthy() {
		body, _ := json.Marshal(map[string]any{
			"type":   eventType,
			"topic":  trackTopic,
			"meta":   trackMeta,
			"weight": trackWeight,
		})
		_, err := c.Post("/api/events", body)
		return err
	}

	return withMemory(func(mem *memory.Memory) error {
		mem.Append(store.NewEvent(eventType, trackTopic, trackMeta, trackWeight))
		return nil
	})
}

// --- fact command ---

var factDelta float64

var factCmd = &cobra.Command{
	Use:   "fact [key] [value]",
	Short: "Upsert a scored fact",
	Long:  "Record an explicitly detected pattern, e.g. mnemo fact prefers.morning_exercise yes --delta 0.3",
	Args:  cobra.ExactArgs(2),
	RunE:  runFact,
}

func runFact(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	c := client.New()
	if c.Healthy() {
		body, _ := json.Marshal(map[string]any{
			"key":         key,
			"value":       value,
			"score_delta": factDelta,
		})
		_, err := c.Post("/api/facts", body)
		return err
	}

	return withMemory(func(mem *memory.Memory) error {
		mem.UpsertFact(config.DefaultUserID, key, value, factDelta)
		return nil
	})
}

// --- context command ---

var contextMaxAge time.Duration

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the current context snapshot as text",
	RunE:  runContext,
}

func runContext(cmd *cobra.Command, args []string) error {
	c := client.New()
	if c.Healthy() {
		data, err := c.Get(fmt.Sprintf("/api/snapshot?max_age_seconds=%d", int(contextMaxAge.Seconds())))
		if err != nil {
			return err
		}
		var resp struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		fmt.Println(resp.Text)
		return nil
	}

	return withMemory(func(mem *memory.Memory) error {
		snap, err := mem.GetOrBuild(config.DefaultUserID, contextMaxAge)
		if err != nil {
			return err
		}
		fmt.Println(snap.AsText())
		return nil
	})
}

// --- profile command ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage explicit profile settings",
}

var profileSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a profile entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		c := client.New()
		if c.Healthy() {
			body, _ := json.Marshal(map[string]string{"value": value})
			_, err := c.Put("/api/profile/"+url.PathEscape(key), body)
			return err
		}

		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		return db.SetProfile(config.DefaultUserID, key, value)
	},
}

var profileUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Remove a profile entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		c := client.New()
		if c.Healthy() {
			_, err := c.Delete("/api/profile/" + url.PathEscape(key))
			return err
		}

		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		return db.DeleteProfile(config.DefaultUserID, key)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all profile entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New()
		if c.Healthy() {
			data, err := c.Get("/api/profile")
			if err != nil {
				return err
			}
			var resp struct {
				Profile map[string]string `json:"profile"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("decode profile: %w", err)
			}
			keys := make([]string, 0, len(resp.Profile))
			for k := range resp.Profile {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s: %s\n", k, resp.Profile[k])
			}
			return nil
		}

		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		entries, err := db.ListProfile(config.DefaultUserID)
		if err != nil {
			return err
		}
		for _, p := range entries {
			fmt.Printf("%s: %s\n", p.Key, p.Value)
		}
		return nil
	},
}

// --- maintenance command ---

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run retention pruning now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(func(mem *memory.Memory) error {
			return mem.RunMaintenance(config.DefaultUserID)
		})
	},
}

// --- forget command ---

var forgetYes bool

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Erase all behavioral data (events, facts, snapshot)",
	Long:  "Deletes every event, every fact, and the snapshot. Profile settings are kept. Irreversible.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !forgetYes {
			return fmt.Errorf("refusing to erase without --yes")
		}
		return withMemory(func(mem *memory.Memory) error {
			if err := mem.Forget(config.DefaultUserID); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "behavioral data erased; profile kept")
			return nil
		})
	},
}

func init() {
	trackCmd.Flags().StringVar(&trackTopic, "topic", "", "Subject used for recency aggregation")
	trackCmd.Flags().Float64Var(&trackWeight, "weight", 1.0, "Event weight")
	trackCmd.Flags().StringVar(&trackMeta, "meta", "", "Opaque serialized metadata (JSON)")

	factCmd.Flags().Float64Var(&factDelta, "delta", 0.1, "Score delta to apply")

	contextCmd.Flags().DurationVar(&contextMaxAge, "max-age", 15*time.Minute, "Tolerated snapshot age before a rebuild")

	forgetCmd.Flags().BoolVar(&forgetYes, "yes", false, "Confirm irreversible erasure")

	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileUnsetCmd)
	profileCmd.AddCommand(profileShowCmd)
}
