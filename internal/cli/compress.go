package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compress [scope]",
		Short: "Compress working, session or epoch memory",
		Args:  cobra.ExactArgs(1),
		Run:   runCompress,
	}
	RootCmd.AddCommand(cmd)
}

func runCompress(cmd *cobra.Command, args []string) {
	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	report, err := eng.MemoryCompress(cmd.Context(), args[0])
	if err != nil {
		exitErr("compress", err)
	}
	fmt.Println(report)
}
