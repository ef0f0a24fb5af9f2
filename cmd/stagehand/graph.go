package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veloir/stagehand/internal/presentation/graph"
	"github.com/veloir/stagehand/pkg/adapters/catalog"
)

var graphCmd = &cobra.Command{
	Use:   "graph [catalog.yaml]",
	Short: "Render the stage catalog as a Mermaid diagram",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGraph(cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
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

	fmt.Print(graph.GenerateMermaid(cat, nil))
	return nil
}
