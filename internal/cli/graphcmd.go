package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "graph [entity]",
		Short: "Query the knowledge graph",
		Args:  cobra.MaximumNArgs(1),
		Run:   runGraph,
	}

	cmd.Flags().StringP("relation", "r", "", "Query by predicate instead of entity neighborhood")
	cmd.Flags().Int("depth", 1, "Neighborhood depth")

	RootCmd.AddCommand(cmd)
}

func runGraph(cmd *cobra.Command, args []string) {
	relation, _ := cmd.Flags().GetString("relation")
	depth, _ := cmd.Flags().GetInt("depth")

	entity := ""
	if len(args) > 0 {
		entity = args[0]
	}

	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	text, err := eng.GraphQuery(cmd.Context(), entity, relation, depth)
	if err != nil {
		exitErr("graph", err)
	}
	fmt.Println(text)
}
