// Command ratatosk operates on a durable normalized graph cache from the
// shell: apply payload merges, inspect nodes, move snapshots in and out as
// JSON, and verify invariants.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/ratatosk/pkg/config"
	"github.com/orneryd/ratatosk/pkg/graph"
	"github.com/orneryd/ratatosk/pkg/logger"
	"github.com/orneryd/ratatosk/pkg/query"
	"github.com/orneryd/ratatosk/pkg/ratatosk"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ratatosk",
		Short: "Ratatosk - normalized graph cache for structured query payloads",
		Long: `Ratatosk merges structured query results into an immutable,
content-normalized graph store with structural sharing.

Features:
  • Entity normalization with content-defined identity
  • Parameterized fields as first-class nodes
  • Transactional merges with orphan collection
  • Durable snapshots (BadgerDB) with integrity checking
  • Portable JSON snapshot export/import`,
	}

	env := config.LoadFromEnv()
	if err := env.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logger.SetLevel(env.LogLevel)

	defaultDir := env.DataDir
	if defaultDir == "" {
		defaultDir = "./data"
	}
	var dataDir, configPath string
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDir, "Snapshot store directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	openCache := func() (*ratatosk.Cache, error) {
		cfg := ratatosk.DefaultConfig()
		cfg.EntityIDField = env.EntityIDField
		cfg.RootIDs = env.RootIDs
		cfg.Strict = env.Strict
		cfg.FreezeSnapshots = env.FreezeSnapshots
		if configPath != "" {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}
			if cfg, err = ratatosk.ParseConfig(data); err != nil {
				return nil, err
			}
		}
		return ratatosk.Open(dataDir, cfg)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Ratatosk v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize an empty snapshot store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()
			nodes, edges := cache.Stats()
			fmt.Printf("Initialized %s (%d nodes, %d edges)\n", dataDir, nodes, edges)
			return nil
		},
	})

	mergeCmd := &cobra.Command{
		Use:   "merge [query.yaml] [payload.json]",
		Short: "Merge a payload into the cache",
		Long: `Merge applies one payload under the given query descriptor and
prints the ids whose content changed. The descriptor is the YAML form of a
query: root id, variables, and the edge map marking parameterized fields.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qData, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			q, err := query.ParseDescriptor(qData)
			if err != nil {
				return err
			}
			pData, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var payload map[string]any
			if err := json.Unmarshal(pData, &payload); err != nil {
				return fmt.Errorf("parse payload: %w", err)
			}

			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			edited, err := cache.Write(q, payload)
			if err != nil {
				return err
			}
			for _, id := range edited {
				fmt.Println(id)
			}
			logger.Log.Info().Int("edited", len(edited)).Msg("merge committed")
			return nil
		},
	}
	rootCmd.AddCommand(mergeCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get [node-id]",
		Short: "Print a node's value and edges as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()
			rec := cache.GetSnapshot().GetSnapshot(graph.NodeID(args[0]))
			if rec == nil {
				return fmt.Errorf("node %q not found", args[0])
			}
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "export [file.json]",
		Short: "Write the snapshot as portable JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()
			data, err := cache.Export()
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			nodes, edges := cache.Stats()
			fmt.Printf("Exported %d nodes, %d edges to %s\n", nodes, edges, args[0])
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "import [file.json]",
		Short: "Replace the snapshot from portable JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()
			if err := cache.Import(data); err != nil {
				return err
			}
			nodes, edges := cache.Stats()
			fmt.Printf("Imported %d nodes, %d edges\n", nodes, edges)
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify snapshot invariants",
		Long: `Check verifies edge symmetry, reachability from the root set, and
(when freeze_snapshots is on) the content digests of every record.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()
			if err := cache.CheckIntegrity(); err != nil {
				return err
			}
			nodes, edges := cache.Stats()
			fmt.Printf("OK: %d nodes, %d edges\n", nodes, edges)
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
