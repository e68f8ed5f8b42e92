package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lexreview/engine/internal/document"
	"lexreview/engine/internal/playbook"
	"lexreview/engine/internal/redline"
)

var flagPlaybook string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Reconcile tracked edits against sections and print the result",
	Long:  "Scan segments the document into numbered sections, attributes every tracked edit to its section, and prints the grouped result as JSON. No reasoning service is contacted.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runScan(); err != nil {
			fmt.Fprintf(os.Stderr, "scan: %v\n", err)
			exitCode = ExitRuntimeError
		}
	},
}

func init() {
	scanCmd.Flags().StringVar(&flagDoc, "doc", "", "path to the document text file (required)")
	scanCmd.Flags().StringVar(&flagEdits, "edits", "", "path to the tracked-edits sidecar file (required)")
	scanCmd.Flags().StringVar(&flagPlaybook, "playbook", "", "path to a review playbook with extra heading patterns")
	_ = scanCmd.MarkFlagRequired("doc")
	_ = scanCmd.MarkFlagRequired("edits")
}

type scanOutput struct {
	Sections     []redline.RedlinedSection `json:"sections"`
	TotalChanges int                       `json:"total_changes"`
}

func runScan() error {
	pb, err := playbook.Load(flagPlaybook)
	if err != nil {
		return err
	}
	patterns, err := pb.CompilePatterns()
	if err != nil {
		return err
	}
	host := document.NewFileHost(flagDoc, flagEdits)
	resolved, err := redline.Reconcile(context.Background(), host, redline.NewSegmenter(patterns...))
	if err != nil {
		return err
	}
	sections := redline.Group(resolved)
	out := scanOutput{Sections: sections, TotalChanges: redline.TotalChanges(sections)}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
