package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Shiori/internal/shiori/store"
)

func newAffairsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "affairs",
		Short: "Manage the project records used by the contact lookup and affair summaries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upsert project records from a YAML or JSON list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			affairs, err := readAffairs(args[0])
			if err != nil {
				return err
			}
			a, _, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.ImportAffairs(cmd.Context(), affairs)
			if err != nil {
				return fmt.Errorf("imported %d of %d records: %w", n, len(affairs), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", n)
			return nil
		},
	})
	return cmd
}

// readAffairs decodes a list of records. JSON is valid YAML, so one decoder
// serves both.
func readAffairs(path string) ([]store.Affair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var affairs []store.Affair
	if err := yaml.Unmarshal(data, &affairs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return affairs, nil
}
