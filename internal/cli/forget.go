package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget [memory-id]",
		Short: "Delete, deprecate or correct a stored memory",
		Args:  cobra.ExactArgs(1),
		Run:   runForget,
	}

	cmd.Flags().StringP("action", "a", "delete", "Action: deprecate, correct, delete")
	cmd.Flags().String("correction", "", "Replacement text (required for correct)")

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	action, _ := cmd.Flags().GetString("action")
	correction, _ := cmd.Flags().GetString("correction")

	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	report, err := eng.MemoryForget(cmd.Context(), args[0], action, correction)
	if err != nil {
		exitErr("forget", err)
	}
	fmt.Println(report)
}
