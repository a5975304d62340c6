package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/validation"
)

// =============================================================================
// Table Rendering
// =============================================================================

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// renderPlan prints the waves followed by the timing summary.
func renderPlan(w io.Writer, plan *domain.DeploymentPlan) {
	waves := newTable(w)
	waves.SetTitle("Deployment plan (%s)", plan.Strategy)
	waves.AppendHeader(table.Row{"Wave", "Services", "Parallel", "Max concurrent", "Est. time (s)"})
	for _, wave := range plan.Waves {
		waves.AppendRow(table.Row{
			wave.WaveNumber,
			strings.Join(wave.Services, ", "),
			yesNo(wave.AllowParallel),
			wave.MaxConcurrent,
			formatSeconds(wave.EstimatedTimeSeconds),
		})
	}
	waves.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	waves.Render()

	summary := newTable(w)
	summary.AppendRows([]table.Row{
		{"Timing model", plan.TimingModel},
		{"Total waves", plan.TotalWaves},
		{"Total services", plan.TotalServices},
		{"Sequential time (s)", formatSeconds(plan.EstimatedSequentialTimeSeconds)},
		{"Optimized time (s)", formatSeconds(plan.EstimatedOptimizedTimeSeconds)},
		{"Savings", fmt.Sprintf("%ss (%.1f%%)", formatSeconds(plan.TimeSavingsSeconds), plan.TimeSavingsPercent)},
		{"Parallel efficiency", fmt.Sprintf("%.1f%%", plan.ParallelEfficiencyPercent)},
		{"Dependencies", plan.Analysis.TotalDependencies},
		{"Independent services", plan.Analysis.IndependentServices},
		{"Max dependency depth", plan.Analysis.MaxDependencyDepth},
	})
	summary.Render()
}

// renderValidation prints either a one-line success or one row per problem.
func renderValidation(w io.Writer, res validation.Result, services int) {
	if res.Valid {
		fmt.Fprintf(w, "Dependency graph is valid (%d services)\n", services)
		return
	}

	t := newTable(w)
	t.SetTitle("%d problem(s) found", len(res.Errors))
	t.AppendHeader(table.Row{"Kind", "Detail"})
	for _, e := range res.Errors {
		t.AppendRow(table.Row{e.Kind, e.Error()})
	}
	t.Render()
}

// renderRollback prints the teardown order, first to roll back on top.
func renderRollback(w io.Writer, order []string) {
	if len(order) == 0 {
		fmt.Fprintln(w, "Nothing to roll back")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Step", "Service"})
	for i, id := range order {
		t.AppendRow(table.Row{i + 1, id})
	}
	t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatSeconds(s float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", s), "0"), ".")
}
