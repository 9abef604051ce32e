package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latentcontext/latentcontext/internal/jsonx"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory engine statistics",
		Run:   runStatus,
	}
	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	st, err := eng.MemoryStatus(cmd.Context())
	if err != nil {
		exitErr("status", err)
	}

	b, _ := jsonx.MarshalIndent(st, "", "  ")
	fmt.Println(string(b))
}
