package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reelline/internal/app"
	"reelline/internal/domain"
	"reelline/internal/engine"
)

func currentResult(ctx context.Context, a *app.App) engine.Result {
	_, res := a.Engine.Snapshot(ctx)
	if note := partialNote(res.Partial, res.Unavailable); note != "" {
		a.Logger.Warn(note)
	}
	return res
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show agency-wide counts, late videos and totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res := currentResult(ctx, a)
				if viper.GetBool("json") {
					return printJSON(res)
				}
				money := newMoneyFormat(a.Config)
				g := res.Global
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Reelline %s", res.Period)
				tw.AppendRows([]table.Row{
					{"Projects", g.Projects},
					{"Videos", g.Videos},
					{"Active", g.Counts.Active},
					{"Late", g.Counts.Late},
					{"In review", g.Counts.InReview},
					{"At client", g.Counts.AtClient},
					{"Revisions", g.Counts.Revision},
					{"Completed", g.Counts.Completed},
					{"Editors", g.Editors},
					{"Avg on-time", money.percent(g.AvgOnTimeRate)},
					{"At risk", g.AtRiskEditors},
					{"Open questions", g.UnansweredQuestions},
					{"Contracted", money.format(g.TotalContracted)},
					{"Collected", money.format(g.TotalCollected)},
					{"Profit", money.format(g.TotalProfit)},
				})
				tw.Render()
				late := newTable()
				late.SetOutputMirror(os.Stdout)
				late.AppendHeader(table.Row{"Late video", "Due"})
				n := 0
				for _, ev := range res.Evaluations {
					if ev.IsLate {
						late.AppendRow(table.Row{ev.VideoID, ev.DueAt.Format(time.RFC3339)})
						n++
					}
				}
				if n > 0 {
					late.Render()
				}
				return nil
			})
		},
	}
}

func projectsCmd() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Per-project progress and status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res := currentResult(ctx, a)
				items := res.Projects[:0:0]
				for _, p := range res.Projects {
					if clientID == "" || p.ClientID == clientID {
						items = append(items, p)
					}
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Client", "Videos", "Active", "Late", "Review", "Done", "Progress"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ProjectID, p.Title, p.ClientName, p.Total, p.Counts.Active, p.Counts.Late,
						p.Counts.InReview + p.Counts.AtClient, p.Counts.Completed, fmt.Sprintf("%d%%", p.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id filter")
	return cmd
}

func performanceCmd() *cobra.Command {
	var editorID string
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Editor levels, ranks and on-time rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res := currentResult(ctx, a)
				items := res.Performance
				if editorID != "" {
					p, ok := res.EditorPerformance(editorID)
					if !ok {
						return fmt.Errorf("editor %s not found", editorID)
					}
					items = items[:0:0]
					items = append(items, p)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Editor", "Level", "Rank", "XP", "Next", "Month", "Late", "On-time", "Active", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.EditorID, p.Level, p.Rank, p.XP, p.NextLevelXP, p.VideosThisMonth, p.LateVideos,
						fmt.Sprintf("%d%%", p.OnTimeRate), p.ActiveVideos, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&editorID, "editor", "", "show one editor")
	return cmd
}

func workloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workload",
		Short: "Active videos per editor against capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res := currentResult(ctx, a)
				if viper.GetBool("json") {
					return printJSON(res.Workload)
				}
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Editor", "Name", "Active", "Capacity", "Load", "Overloaded"})
				for _, w := range res.Workload {
					tw.AppendRow(table.Row{w.EditorID, w.Name, w.Active, w.Capacity, fmt.Sprintf("%d%%", w.LoadPercent), yesNo(w.Overloaded)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func financeCmd() *cobra.Command {
	var period, clientID string
	cmd := &cobra.Command{
		Use:   "finance",
		Short: "Monthly client costs, shared charges and profitability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var res engine.Result
				if period == "" {
					res = currentResult(ctx, a)
				} else {
					p, err := domain.ParsePeriod(period, time.UTC)
					if err != nil {
						return err
					}
					_, res = a.Engine.SnapshotFor(ctx, p)
				}
				rep := res.Finance
				money := newMoneyFormat(a.Config)
				if clientID != "" {
					c, ok := rep.Client(clientID)
					if !ok {
						return fmt.Errorf("client %s not found", clientID)
					}
					if viper.GetBool("json") {
						return printJSON(c)
					}
					tw := newTable()
					tw.SetOutputMirror(os.Stdout)
					tw.SetTitle("%s (%s)", c.Name, rep.Period)
					tw.AppendRows([]table.Row{
						{"Videos", fmt.Sprintf("%d / %d", c.VideoCount, c.VideosExpected)},
						{"Video cost", money.format(c.VideoCost)},
						{"Designs", c.DesignCount},
						{"Design cost", money.format(c.DesignCost)},
						{"Copywriting", money.format(c.CopywritingCost)},
						{"Designer retainer", money.format(c.DesignerRetainerCost)},
						{"Total cost", money.format(c.TotalCost)},
						{"Shared charge", money.format(c.SharedCharge)},
						{"Paid this month", money.format(c.TotalPaid)},
						{"Profit", money.format(c.Profit)},
						{"Margin", money.percent(c.Margin)},
						{"Contract", money.format(c.Contract)},
						{"Balance", money.format(c.Balance)},
						{"Status", c.Status},
					})
					tw.Render()
					contributors := newTable()
					contributors.SetOutputMirror(os.Stdout)
					contributors.AppendHeader(table.Row{"Member", "Role", "Videos", "Designs", "Earned"})
					for _, ct := range c.Contributors {
						contributors.AppendRow(table.Row{ct.Name, ct.Role, ct.Videos, ct.Designs, money.format(ct.Earned)})
					}
					contributors.Render()
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Finance %s: %d active clients, shared charge %s", rep.Period, rep.ActiveClientCount, money.format(rep.SharedChargePerClient))
				tw.AppendHeader(table.Row{"Client", "Cost", "Shared", "Paid", "Profit", "Margin", "Balance", "Progress", "Status"})
				for _, c := range rep.Clients {
					tw.AppendRow(table.Row{c.Name, money.format(c.TotalCost), money.format(c.SharedCharge), money.format(c.TotalPaid),
						money.format(c.Profit), money.percent(c.Margin), money.format(c.Balance), money.percent(c.Progress), c.Status})
				}
				tw.AppendFooter(table.Row{"Total", money.format(rep.TotalCost), "", money.format(rep.TotalCollected), money.format(rep.TotalProfit)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "month as YYYY-MM (default current)")
	cmd.Flags().StringVar(&clientID, "client", "", "show one client")
	return cmd
}
