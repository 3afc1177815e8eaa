package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reelline/internal/app"
	"reelline/internal/config"
	"reelline/internal/db"
	"reelline/internal/engine"
	"reelline/internal/repo"
	"reelline/internal/server"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a default reelline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			existing, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if existing == nil {
				path := config.Path(workspace)
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("Workspace ready at %s\n", db.Path(workspace))
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <seed.yml|seed.toml>",
		Short: "Load records from a seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f, err := app.ReadSeed(args[0])
				if err != nil {
					return err
				}
				d, err := f.Dataset(time.Now())
				if err != nil {
					return err
				}
				counts, err := a.Engine.Import(ctx, d, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				names := make([]string, 0, len(counts))
				for name := range counts {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("%-12s %d\n", name, counts[name])
				}
				return nil
			})
		},
	}
}

func videoCmd() *cobra.Command {
	video := &cobra.Command{Use: "video", Short: "Inspect and move videos"}
	video.AddCommand(videoShowCmd())
	video.AddCommand(videoTransitionCmd())
	video.AddCommand(videoListCmd())
	return video
}

func videoListCmd() *cobra.Command {
	var f repo.VideoFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List videos with their derived status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				videos, err := a.Engine.Repo.ListVideos(ctx, f)
				if err != nil {
					return err
				}
				ev := a.Engine.Evaluator()
				now := time.Now()
				states := make([]engine.VideoState, 0, len(videos))
				for _, v := range videos {
					states = append(states, engine.VideoState{Video: v, Evaluation: ev.Evaluate(v, now)})
				}
				if viper.GetBool("json") {
					return printJSON(states)
				}
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Title", "Assignee", "Stored", "Status", "Due"})
				for _, s := range states {
					due := ""
					if !s.Evaluation.DueAt.IsZero() {
						due = s.Evaluation.DueAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{s.Video.ID, s.Video.ProjectID, s.Video.Title, s.Video.Assignee(), s.Video.Status, s.Evaluation.Status, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "stored status filter")
	return cmd
}

func videoShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show a video and its derived status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				state, err := a.Engine.VideoState(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(state)
			})
		},
	}
}

func videoTransitionCmd() *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "transition <video-id> <status>",
		Short: "Change a video's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := a.Engine.TransitionVideo(ctx, engine.TransitionOptions{
					VideoID:  args[0],
					Status:   args[1],
					ActorID:  viper.GetString("actor-id"),
					Force:    viper.GetBool("force"),
					Validate: validate,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("%s is now %s\n", v.ID, v.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "mark a completed video as validated")
	return cmd
}

func lateCmd() *cobra.Command {
	late := &cobra.Command{Use: "late", Short: "Lateness detection"}
	late.AddCommand(lateCheckCmd())
	late.AddCommand(lateNoticesCmd())
	return late
}

func lateCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Persist late transitions and send pending notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock := flock.New(db.LockPath(viper.GetString("workspace")))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("lock: %w", err)
			}
			if !locked {
				return errors.New("another lateness sweep is running")
			}
			defer lock.Unlock()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				snap, res := a.Engine.Snapshot(ctx)
				report, sweepErr := a.Engine.ApplyLateTransitions(ctx, snap, res)
				if viper.GetBool("json") {
					if err := printJSON(report); err != nil {
						return err
					}
				} else {
					fmt.Printf("detected %d, marked %d, notified %d, failed %d\n", report.Detected, report.Marked, report.Notified, report.Failed)
				}
				return sweepErr
			})
		},
	}
}

func lateNoticesCmd() *cobra.Command {
	var videoID string
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "List recorded late notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				notices, err := a.Engine.Repo.ListLateNotices(ctx, videoID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notices)
				}
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Video", "Detected", "Notified", "Last error"})
				for _, n := range notices {
					notified := ""
					if n.NotifiedAt != nil {
						notified = n.NotifiedAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{n.Key, n.VideoID, n.DetectedAt.Format(time.RFC3339), notified, n.LastError})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&videoID, "video", "", "video id filter")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Kind", "Entity", "Actor", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind, e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	lg.AddCommand(tail)
	return lg
}

func tokenCmd() *cobra.Command {
	var roles, perms []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Mint an API bearer token signed with REELLINE_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if strings.TrimSpace(secret) == "" {
				return errors.New("REELLINE_JWT_SECRET is required")
			}
			tok, err := server.SignToken(secret, args[0], roles, perms, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim (admin, editor)")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "permission claim (finance.read, videos.write, engine.manage)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
