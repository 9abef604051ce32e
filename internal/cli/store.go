package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/latentcontext/latentcontext/internal/jsonx"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a memory note",
		Long:  "Store a memory note. Content can be a positional arg or piped via stdin.",
		Run:   runStore,
	}

	cmd.Flags().StringP("kind", "k", "event", "Kind: fact, preference, event, summary, core")
	cmd.Flags().Float64P("confidence", "C", 1.0, "Confidence in [0,1]")
	cmd.Flags().StringP("entities", "e", "", "Comma-separated entity labels")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	entitiesStr, _ := cmd.Flags().GetString("entities")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("store", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var entities []string
	for _, e := range strings.Split(entitiesStr, ",") {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}

	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	res, warning, err := eng.MemoryStore(cmd.Context(), strings.TrimSpace(content), kind, confidence, entities)
	if err != nil {
		exitErr("store", err)
	}

	b, _ := jsonx.Marshal(res)
	fmt.Println(string(b))
	if warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}
}
