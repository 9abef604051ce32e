package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latentcontext/latentcontext/internal/jsonx"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump all persisted summaries as JSON",
		Run:   runExport,
	}
	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	data, err := eng.Export(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	b, _ := jsonx.MarshalIndent(data, "", "  ")
	fmt.Println(string(b))
}
