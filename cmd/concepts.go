package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/creative-engine/internal/concepts"
)

func newConceptsCmd() *cobra.Command {
	var conceptsPath string

	cmd := &cobra.Command{
		Use:   "concepts",
		Short: "Print the concept library as YAML",
		Long: `Prints the concept library used for prompts. Without --concepts the
built-in library is printed, which is a good starting point for a custom one.`,
		Example: `  creative-engine concepts > concepts.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := loadLibrary(conceptsPath)
			if err != nil {
				return err
			}
			data, err := lib.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&conceptsPath, "concepts", "", "YAML concept library (default: built-in)")

	return cmd
}

func loadLibrary(path string) (*concepts.Library, error) {
	if path == "" {
		return concepts.Default(), nil
	}
	return concepts.LoadFile(path)
}
