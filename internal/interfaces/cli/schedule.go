package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/famcoin/backend/internal/infrastructure/config"
	"github.com/famcoin/backend/internal/infrastructure/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const scheduleStopTimeout = 30 * time.Second

func newScheduleCommand(r *runner) *cobra.Command {
	var (
		once    bool
		members []string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Distribute daily coins to the configured members on a schedule",
		Long: `Distribute daily coins to every member listed under [[scheduler.members]] plus
the --member flags. Each member receives today's coins in their own time zone;
members already distributed for the day are skipped.

Without --once the command runs until interrupted, firing once a day at
scheduler.run_at.

Example:
  coinctl schedule --once --member fam-1:alice:Asia/Tokyo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				all, err := scheduleMembers(app.Schedule.Members, members)
				if err != nil {
					return err
				}

				sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
					MaxConcurrentJobs: app.Schedule.Workers,
					JobTimeout:        app.Schedule.JobTimeout,
					RetryAttempts:     app.Schedule.RetryAttempts,
					RetryDelay:        app.Schedule.RetryDelay,
				}, distributionExecutor(app), app.Logger)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), scheduleStopTimeout)
					defer cancel()
					if err := sched.Stop(stopCtx); err != nil {
						app.Logger.Warn("Scheduler did not stop cleanly", zap.Error(err))
					}
				}()

				if once {
					return runOnce(ctx, sched, all, out)
				}
				return runDaily(ctx, app, sched, all)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "distribute once for today and exit")
	cmd.Flags().StringArrayVar(&members, "member", nil, "extra member as family:user[:timezone] (repeatable)")
	return cmd
}

func scheduleMembers(configured []config.MemberConfig, extra []string) ([]scheduler.Member, error) {
	all := make([]scheduler.Member, 0, len(configured)+len(extra))
	for _, m := range configured {
		all = append(all, scheduler.Member{FamilyID: m.Family, UserID: m.User, Timezone: m.Timezone})
	}
	for _, s := range extra {
		m, err := scheduler.ParseMember(s)
		if err != nil {
			return nil, shared.NewValidationError("member", err.Error())
		}
		all = append(all, m)
	}
	return all, nil
}

func distributionExecutor(app *App) scheduler.ExecutorFunc {
	return func(ctx context.Context, job *scheduler.Job) error {
		_, err := app.Distribution.DistributeToday(ctx, job.Member.FamilyID, job.Member.UserID, job.Member.Timezone)
		return err
	}
}

func runOnce(ctx context.Context, sched *scheduler.Scheduler, members []scheduler.Member, out *OutputFormatter) error {
	if err := sched.ScheduleMembers(members); err != nil {
		return err
	}
	if err := sched.Wait(ctx); err != nil {
		return err
	}

	jobs := sched.Finished()
	failed := 0
	for _, j := range jobs {
		if j.Status == scheduler.JobStatusFailed {
			failed++
		}
	}
	if err := out.Success(jobs, func(w io.Writer) {
		if len(jobs) == 0 {
			fmt.Fprintln(w, "No members to distribute to")
			return
		}
		for _, j := range jobs {
			line := fmt.Sprintf("%-8s %s", j.Status, j.Member)
			if j.Error != "" {
				line += "  " + j.Error
			}
			fmt.Fprintln(w, line)
		}
	}); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d distributions failed", failed, len(jobs))
	}
	return nil
}

func runDaily(ctx context.Context, app *App, sched *scheduler.Scheduler, members []scheduler.Member) error {
	hour, minute, err := scheduler.ParseDailyTime(app.Schedule.RunAt)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(app.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	trigger := scheduler.NewDailyTrigger(scheduler.DailyTriggerConfig{
		Hour:          hour,
		Minute:        minute,
		Location:      loc,
		CheckInterval: app.Schedule.CheckInterval,
	}, sched, scheduler.StaticMembers(members), app.Logger, nil)
	if err := trigger.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), scheduleStopTimeout)
	defer cancel()
	return trigger.Stop(stopCtx)
}
