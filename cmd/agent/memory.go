package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-ai-diagnostics/pkg/config"
	"github.com/opscart/k8s-ai-diagnostics/pkg/memory"
)

// Memory commands: the persistence boundary is human-inspectable and safe
// to clear externally.
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage learned remediation patterns",
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List learned patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		patterns, err := store.List()
		if err != nil {
			return fmt.Errorf("failed to list patterns: %w", err)
		}
		if len(patterns) == 0 {
			fmt.Println("No patterns learned yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FINGERPRINT\tACTION\tSUCCESS\tTOTAL\tLAST UPDATED")
		for _, p := range patterns {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				p.Fingerprint, p.Action, p.SuccessCount, p.TotalCount,
				p.LastUpdated.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var memoryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all learned patterns, forcing a full relearn",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Reset(); err != nil {
			return fmt.Errorf("failed to reset patterns: %w", err)
		}
		fmt.Println("Pattern memory cleared.")
		return nil
	},
}

func openStore(cmd *cobra.Command) (memory.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = config.Default().DataDir
	}
	store, err := memory.NewBoltStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern memory: %w", err)
	}
	return store, nil
}

func init() {
	memoryCmd.PersistentFlags().String("data-dir", "", "Directory holding the pattern database")
	memoryCmd.AddCommand(memoryShowCmd)
	memoryCmd.AddCommand(memoryResetCmd)
}
