package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/drivesync/drivesync/internal/drive"
	syncer "github.com/drivesync/drivesync/internal/sync"
)

var actionMarks = map[syncer.ActionKind]string{
	syncer.ActionCreate: "+",
	syncer.ActionUpdate: "~",
	syncer.ActionDelete: "-",
}

// renderSummary prints one block per target followed by the totals line.
// With showPlan every planned change is listed as well.
func renderSummary(w io.Writer, s *syncer.Summary, showPlan bool) {
	var written uint64
	for _, t := range s.Targets {
		fmt.Fprintf(w, "%s %s\n", highlight.Render(t.Target.Key()), gray.Render("<- "+t.Target.DriveFolderID))

		if t.Err != nil {
			fmt.Fprintf(w, "  %s %v\n", failMark(), t.Err)
			if h := drive.Hint(t.Err); h != "" {
				fmt.Fprintf(w, "    %s\n", gray.Render(h))
			}
		}
		if t.Rebuilt > 0 {
			fmt.Fprintf(w, "  %s\n", warnStyle.Render(fmt.Sprintf("manifest rebuilt from %d existing files", t.Rebuilt)))
		}
		if showPlan && t.Plan != nil {
			renderPlan(w, t.Plan)
		}
		if t.Result == nil {
			continue
		}
		written += t.Result.Bytes
		for _, f := range t.Result.Failures {
			fmt.Fprintf(w, "  %s %s %s: %v\n", failMark(), f.Action, f.Path, f.Err)
			if h := drive.Hint(f.Err); h != "" {
				fmt.Fprintf(w, "    %s\n", gray.Render(h))
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, totalsLine(s, written))
}

func renderPlan(w io.Writer, plan *syncer.Plan) {
	changes := plan.Changes()
	if len(changes) == 0 {
		fmt.Fprintf(w, "  %s\n", gray.Render("up to date"))
		return
	}
	for i := range changes {
		a := &changes[i]
		line := fmt.Sprintf("  %s %s", actionMarks[a.Kind], a.LocalPath)
		if a.Kind == syncer.ActionDelete && a.Renamed {
			line += gray.Render(" (moved)")
		}
		switch a.Kind {
		case syncer.ActionCreate:
			line = okStyle.Render(line)
		case syncer.ActionDelete:
			line = errStyle.Render(line)
		default:
			line = warnStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}

// totalsLine reads "N created, N updated, N deleted, N unchanged, N errors".
func totalsLine(s *syncer.Summary, written uint64) string {
	c := s.Totals()
	line := fmt.Sprintf("%d created, %d updated, %d deleted, %d unchanged, %d errors",
		c.Created, c.Updated, c.Deleted, c.Skipped, c.Failed)

	if s.DryRun {
		line = "Dry run: " + line
	} else if written > 0 {
		line += fmt.Sprintf(" (%s written)", humanize.Bytes(written))
	}
	line += " in " + s.Duration.Round(time.Millisecond).String()

	if c.Failed > 0 {
		return errStyle.Render(line)
	}
	return okStyle.Render(line)
}
