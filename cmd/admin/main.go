package main

import (
	"campuscare/backend/internal/appeal"
	"campuscare/backend/internal/auth"
	"campuscare/backend/internal/config"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/moderation"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/storage"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// services are built once per invocation, after flags are parsed.
type services struct {
	store      storage.Storage
	auth       *auth.Service
	moderation *moderation.Service
	appeals    *appeal.Service
}

type cli struct {
	cfg  config.Config
	open func() (*gorm.DB, error)
	out  io.Writer

	as  string
	svc *services
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	open := func() (*gorm.DB, error) {
		return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	}
	if err := newRootCmd(cfg, open, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config, open func() (*gorm.DB, error), out io.Writer) *cobra.Command {
	c := &cli{cfg: cfg, open: open, out: out}

	root := &cobra.Command{
		Use:          "admin",
		Short:        "Administer CampusCare accounts and the moderation queues",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&c.as, "as", "", "username of the counselor or admin performing review commands")

	root.AddCommand(c.createStaffCmd(), c.pendingCmd(), c.flaggedCmd(), c.appealCmd())
	return root
}

func (c *cli) setup() error {
	if c.svc != nil {
		return nil
	}
	db, err := c.open()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// no Redis: notifications are still written, realtime pushes are skipped
	st := storage.NewStorageService(db, nil)
	log := logger.NewNop()
	loc := localization.Default()
	dispatcher := notify.NewDispatcher(st, c.cfg.RoleCacheTTL, nil, log, nil)
	c.svc = &services{
		store: st,
		auth:  auth.NewService(st, c.cfg.JWTSecret, c.cfg.TokenTTL, c.cfg.StudentEmailDomain, log),
		moderation: moderation.NewService(st, nil, dispatcher, loc, moderation.Options{
			Threshold: c.cfg.Moderation.ConfidenceThreshold,
			Language:  c.cfg.Language,
			Logger:    log,
		}),
		appeals: appeal.NewService(st, dispatcher, loc, c.cfg.Language, log),
	}
	return nil
}

// reviewer resolves --as to a staff actor.
func (c *cli) reviewer(ctx context.Context) (models.Actor, error) {
	if c.as == "" {
		return models.Actor{}, fmt.Errorf("--as <username> is required for review commands")
	}
	u, err := c.svc.store.GetUserByUsername(ctx, c.as)
	if err != nil {
		return models.Actor{}, fmt.Errorf("reviewer %q: %w", c.as, err)
	}
	if !u.Role.IsStaff() {
		return models.Actor{}, fmt.Errorf("reviewer %q is not a counselor or admin", c.as)
	}
	return models.Actor{ID: u.ID, Role: u.Role}, nil
}

func (c *cli) createStaffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-staff <username> <password> <counselor|admin>",
		Short: "Create a counselor or admin account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := c.svc.auth.CreateStaff(cmd.Context(), args[0], args[1], models.Role(args[2]))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Created %s %s (%s)\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
}

func (c *cli) pendingCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{Use: "pending", Short: "Review content held for manual review"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending content",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			items, err := c.svc.moderation.ListPending(cmd.Context(), actor, !all)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tCATEGORY\tRESOLUTION\tCREATED\tBODY")
			for _, p := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.ContentKind, p.Category, p.Resolution,
					p.CreatedAt.Format("2006-01-02 15:04"), excerpt(p.Body))
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved items")

	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Publish a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			contentID, err := c.svc.moderation.ApprovePending(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Approved %s, published as %s\n", args[0], contentID)
			return nil
		},
	}

	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.svc.moderation.RejectPending(cmd.Context(), actor, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Rejected %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, approve, reject)
	return cmd
}

func (c *cli) flaggedCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{Use: "flagged", Short: "Review flagged content"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List flagged content, most severe first",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			items, err := c.svc.moderation.ListFlagged(cmd.Context(), actor, !all)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLEVEL\tKIND\tCATEGORY\tPUBLISHED\tRESOLVED\tBODY")
			for _, f := range items {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\t%t\t%s\n", f.ID, f.FlagLevel, f.ContentKind, f.Category,
					f.ContentID != nil, f.IsResolved, excerpt(f.Body))
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved items")

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a flagged item as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.svc.moderation.ResolveFlagged(cmd.Context(), actor, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Resolved %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, resolve)
	return cmd
}

func (c *cli) appealCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "appeal", Short: "Decide authors' appeals"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List open appeals",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			appeals, err := c.svc.appeals.List(cmd.Context(), actor, models.AppealPending)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTARGET\tCREATED\tREASON")
			for _, a := range appeals {
				target := "pending:" + deref(a.PendingContentID)
				if a.FlaggedContentID != nil {
					target = "flagged:" + *a.FlaggedContentID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, target, a.CreatedAt.Format("2006-01-02 15:04"), excerpt(a.Reason))
			}
			return w.Flush()
		},
	}

	decide := &cobra.Command{
		Use:       "decide <id> <approve|reject> [note]",
		Short:     "Approve or reject an appeal",
		Args:      cobra.RangeArgs(2, 3),
		ValidArgs: []string{"approve", "reject"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var approve bool
			switch args[1] {
			case "approve":
				approve = true
			case "reject":
			default:
				return fmt.Errorf("decision must be approve or reject, got %q", args[1])
			}
			var note string
			if len(args) == 3 {
				note = args[2]
			}
			actor, err := c.reviewer(cmd.Context())
			if err != nil {
				return err
			}
			a, err := c.svc.appeals.Decide(cmd.Context(), actor, args[0], approve, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Appeal %s %s\n", a.ID, a.Status)
			return nil
		},
	}

	cmd.AddCommand(list, decide)
	return cmd
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return string(r)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
