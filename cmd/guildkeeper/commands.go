package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/backup"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/metrics"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/xp"
)

func (app *cli) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := app.openRuntime(ctx, metrics.Noop{})
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(ctx, rt, cmd.OutOrStdout())
}

func parseUserID(raw string) (int64, error) {
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID < 1 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return userID, nil
}

func (app *cli) newAdminsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Manage bot admins",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List admins in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(_ context.Context, rt *runtime, out io.Writer) error {
				writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(writer, "USER ID\tUSERNAME\tFULL NAME")
				for _, profile := range rt.store.AdminDetails() {
					fmt.Fprintf(writer, "%d\t%s\t%s\n", profile.UserID, profile.Username, profile.FullName)
				}
				return writer.Flush()
			})
		},
	}

	var username, fullName string
	add := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Register an admin or update its profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime, out io.Writer) error {
				changed, err := rt.store.AddAdmin(ctx, userID, username, fullName)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintf(out, "admin %d unchanged\n", userID)
					return nil
				}
				fmt.Fprintf(out, "admin %d saved\n", userID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&username, "username", "", "Public username")
	add.Flags().StringVar(&fullName, "full-name", "", "Display name")

	remove := &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime, out io.Writer) error {
				removed, err := rt.store.RemoveAdmin(ctx, userID)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("user %d is not an admin", userID)
				}
				fmt.Fprintf(out, "admin %d removed\n", userID)
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func (app *cli) newQuestionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage application question overrides",
	}

	var language string
	set := &cobra.Command{
		Use:   "set <question-id> [prompt]",
		Short: "Set an override; omit the prompt to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := ""
			if len(args) == 2 {
				prompt = args[1]
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime, out io.Writer) error {
				changed, err := rt.store.SetApplicationQuestion(ctx, args[0], prompt, language)
				if err != nil {
					return err
				}
				bucket := state.NormalizeLanguageKey(language)
				switch {
				case !changed:
					fmt.Fprintf(out, "question %s unchanged in %s\n", args[0], bucket)
				case prompt == "":
					fmt.Fprintf(out, "question %s cleared in %s\n", args[0], bucket)
				default:
					fmt.Fprintf(out, "question %s set in %s\n", args[0], bucket)
				}
				return nil
			})
		},
	}
	set.Flags().StringVar(&language, "language", "", "Language code (empty for the default bucket)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective overrides for a language",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(_ context.Context, rt *runtime, out io.Writer) error {
				overrides := rt.store.ApplicationQuestions(language)
				for _, questionID := range slices.Sorted(maps.Keys(overrides)) {
					fmt.Fprintf(out, "%s\t%s\n", questionID, overrides[questionID])
				}
				return nil
			})
		},
	}
	show.Flags().StringVar(&language, "language", "", "Language code")

	cmd.AddCommand(set, show)
	return cmd
}

func (app *cli) newXPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xp",
		Short: "Inspect and award experience points",
	}

	var (
		chatID   int64
		amount   int64
		username string
		limit    int
	)
	add := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Award XP to a member of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime, out io.Writer) error {
				total, err := rt.store.AddXP(ctx, chatID, userID, amount, state.XPIdentity{Username: username})
				if err != nil {
					return err
				}
				progress := xp.Progress(total)
				fmt.Fprintf(out, "user %d in chat %d: %d xp, level %d (%d to next)\n",
					userID, chatID, total, progress.Level, progress.XPToNext())
				return nil
			})
		},
	}
	add.Flags().Int64Var(&chatID, "chat", 0, "Chat id")
	add.Flags().Int64Var(&amount, "amount", 1, "XP to add")
	add.Flags().StringVar(&username, "username", "", "Username to record on the XP profile")
	_ = add.MarkFlagRequired("chat")

	top := &cobra.Command{
		Use:   "top",
		Short: "Print the leaderboard of a chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(_ context.Context, rt *runtime, out io.Writer) error {
				size := limit
				if size <= 0 {
					size = rt.config.XPLeaderboardSize
				}
				for rank, entry := range rt.store.XPLeaderboard(chatID, size) {
					fmt.Fprintf(out, "%d. %s %d xp (level %d)\n", rank+1, entry.UserKey, entry.Score, xp.Progress(entry.Score).Level)
				}
				return nil
			})
		},
	}
	top.Flags().Int64Var(&chatID, "chat", 0, "Chat id")
	top.Flags().IntVar(&limit, "limit", 0, "Rows to print (defaults to xp.leaderboard_size)")
	_ = top.MarkFlagRequired("chat")

	cmd.AddCommand(add, top)
	return cmd
}

func (app *cli) newSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect the primary snapshot",
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Reload the snapshot if it changed and print its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime, out io.Writer) error {
				if err := rt.store.EnsureLatestSnapshot(ctx); err != nil {
					return err
				}
				signature, ok := rt.store.Signature()
				if !ok {
					fmt.Fprintf(out, "%s: no snapshot\n", rt.store.Path())
					return nil
				}
				fmt.Fprintf(out, "%s: %d bytes, modified %s, %d admins, %d pending applications\n",
					rt.store.Path(), signature.Size, signature.ModTime.UTC().Format(time.RFC3339),
					len(rt.store.ListAdmins()), len(rt.store.PendingApplications()))
				return nil
			})
		},
	}
	cmd.AddCommand(check)
	return cmd
}

func (app *cli) newBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Work with the SQLite backup mirror",
	}

	var from string
	restore := &cobra.Command{
		Use:   "restore",
		Short: "Rebuild the primary snapshot from a SQLite backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime, out io.Writer) error {
				source := from
				if source == "" {
					source = rt.config.BackupPath
				}
				if source == "" {
					return fmt.Errorf("no backup path: pass --from or set storage.backup_path")
				}
				snapshot, err := backup.ReadRawSnapshot(ctx, source)
				if err != nil {
					return err
				}
				if err := rt.store.Restore(ctx, snapshot.Payload); err != nil {
					return err
				}
				fmt.Fprintf(out, "restored %s from export %s (%s)\n", rt.store.Path(), snapshot.ExportID, snapshot.ExportedAt)
				return nil
			})
		},
	}
	restore.Flags().StringVar(&from, "from", "", "Backup file (defaults to storage.backup_path)")

	cmd.AddCommand(restore)
	return cmd
}
