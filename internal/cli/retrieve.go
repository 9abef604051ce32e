package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/latentcontext/latentcontext/internal/assemble"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Assemble a token-budgeted digest of relevant memories",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRetrieve,
	}

	cmd.Flags().IntP("budget", "b", 0, "Token budget (default: configured defaultRetrieveBudget)")
	cmd.Flags().StringSliceP("types", "t", nil, "Filter by memory types")
	cmd.Flags().String("after", "", "Only memories created after (RFC3339)")
	cmd.Flags().String("before", "", "Only memories created before (RFC3339)")
	cmd.Flags().Float64("min-confidence", 0, "Minimum vector confidence")

	RootCmd.AddCommand(cmd)
}

func runRetrieve(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")
	types, _ := cmd.Flags().GetStringSlice("types")
	afterStr, _ := cmd.Flags().GetString("after")
	beforeStr, _ := cmd.Flags().GetString("before")
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")

	params := assemble.Params{
		Query:  strings.Join(args, " "),
		Budget: budget,
		Filters: assemble.Filters{
			MemoryTypes:   types,
			MinConfidence: minConf,
		},
	}
	if afterStr != "" {
		t, err := time.Parse(time.RFC3339, afterStr)
		if err != nil {
			exitErr("parse after", err)
		}
		params.Filters.After = &t
	}
	if beforeStr != "" {
		t, err := time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			exitErr("parse before", err)
		}
		params.Filters.Before = &t
	}

	eng, logger, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer logger.Sync()
	defer eng.Close()

	res, err := eng.MemoryRetrieve(cmd.Context(), params)
	if err != nil {
		exitErr("retrieve", err)
	}
	fmt.Println(res.Text)
}
