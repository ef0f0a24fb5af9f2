package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veloir/stagehand/internal/validator"
	"github.com/veloir/stagehand/pkg/adapters/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate [catalog.yaml]",
	Short: "Check the stage catalog for consistency",
	Long:  `Parses the catalog and reports dangling transitions, unreachable stages, malformed guards and ordering defects.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Catalog is valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("catalog")
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = "./catalog.yaml"
	}

	cat, err := catalog.NewFileLoader(path).LoadCatalog(cmd.Context())
	if err != nil {
		return err
	}

	result := validator.Validate(cat, cat.EntryStageID)
	if result.Valid {
		return nil
	}
	for _, e := range result.Errors {
		fmt.Printf("  - %s\n", e.Error())
	}
	return fmt.Errorf("%d error(s)", len(result.Errors))
}
