package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/yz4230/shipyard/internal/git"
	"github.com/yz4230/shipyard/internal/usecase"
)

var detectCmd = &cobra.Command{
	Use:   "detect [path]",
	Short: "Show how a project would be built",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		res, err := usecase.InspectProject(cmd.Context(), git.New(0), lo.Must(filepath.Abs(dir)))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}
