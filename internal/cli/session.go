package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latentcontext/latentcontext/internal/jsonx"
)

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Session management",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new session, archiving the previous one",
		Run:   runSessionStart,
	}

	sessionCmd.AddCommand(startCmd)
	RootCmd.AddCommand(sessionCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) {
	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	res, err := eng.SessionStart(cmd.Context())
	if err != nil {
		exitErr("session start", err)
	}

	b, _ := jsonx.Marshal(res)
	fmt.Println(string(b))
}
