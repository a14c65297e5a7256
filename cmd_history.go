package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"github.com/mjpowersjr/block-hash-experiments/journal"
)

// runView is the JSON shape of a journaled run.
type runView struct {
	ID           string  `json:"id"`
	Start        uint64  `json:"start"`
	Threshold    float64 `json:"threshold"`
	Horses       int     `json:"horses"`
	Endpoint     string  `json:"endpoint"`
	StartedAt    string  `json:"started_at"`
	FinishedAt   string  `json:"finished_at,omitempty"`
	Winner       string  `json:"winner,omitempty"`
	WinnerHeight uint64  `json:"winner_height,omitempty"`
	Error        string  `json:"error,omitempty"`
	Blocks       int     `json:"blocks"`
}

// stepView is the JSON shape of one journaled block.
type stepView struct {
	Height     uint64  `json:"height"`
	Hash       string  `json:"hash"`
	Multiplier float64 `json:"multiplier"`
	Paces      []int   `json:"paces"`
	Mode       string  `json:"mode"`
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled races",
		Long: `Lists races recorded with --journal, newest first.

With --run, prints every block the given race applied instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Journal == "" {
				return errors.New("no journal configured (use --journal or BLOCKRACE_JOURNAL)")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			runID, _ := cmd.Flags().GetString("run")
			jsonOut, _ := cmd.Flags().GetBool("json")

			j, err := journal.Open(cfg.Journal)
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				steps, err := j.Steps(runID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(out, stepViews(steps))
				}
				printSteps(out, steps)
				return nil
			}

			runs, err := j.Recent(limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(out, runViews(runs))
			}
			printRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	cmd.Flags().String("run", "", "Show the blocks of one run")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runViews(runs []journal.Run) []runView {
	views := make([]runView, 0, len(runs))
	for _, r := range runs {
		v := runView{
			ID:           r.ID,
			Start:        r.Start,
			Threshold:    r.Threshold,
			Horses:       r.Horses,
			Endpoint:     r.Endpoint,
			StartedAt:    r.StartedAt.UTC().Format(time.RFC3339),
			Winner:       r.Winner,
			WinnerHeight: r.WinnerHeight,
			Error:        r.Error,
			Blocks:       r.Blocks,
		}
		if r.Finished() {
			v.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, v)
	}
	return views
}

func stepViews(steps []journal.Step) []stepView {
	views := make([]stepView, 0, len(steps))
	for _, s := range steps {
		views = append(views, stepView(s))
	}
	return views
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No races recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tFROM\tHORSES\tBLOCKS\tOUTCOME")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Start, r.Horses, r.Blocks, outcome(r))
	}
	tw.Flush()
}

func outcome(r journal.Run) string {
	switch {
	case r.Winner != "":
		return fmt.Sprintf("%s at block %d", r.Winner, r.WinnerHeight)
	case r.Error != "":
		return "failed: " + r.Error
	case r.Finished():
		return "finished"
	default:
		return "unfinished"
	}
}

func printSteps(w io.Writer, steps []journal.Step) {
	if len(steps) == 0 {
		fmt.Fprintln(w, "No blocks recorded for this run.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HEIGHT\tMODE\tUSAGE\tPACES")
	for _, s := range steps {
		paces := make([]string, len(s.Paces))
		for i, p := range s.Paces {
			paces[i] = fmt.Sprint(p)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\n", s.Height, s.Mode, s.Multiplier, strings.Join(paces, " "))
	}
	tw.Flush()
}
