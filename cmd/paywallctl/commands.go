package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/paywall/internal/lib/jwt"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/services/sweeper"
)

const dateLayout = "2006-01-02"

type cli struct {
	open       opener
	configPath string
	backend    Backend
	cleanup    func()
}

// newRootCommand собирает дерево команд. release освобождает ресурсы Backend
// и должна быть вызвана после Execute.
func newRootCommand(open opener) (root *cobra.Command, release func()) {
	c := &cli{open: open}

	root = &cobra.Command{
		Use:           "paywallctl",
		Short:         "Paywall administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			b, cleanup, err := c.open(cmd.Context(), c.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.backend, c.cleanup = b, cleanup
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config file (default $CONFIG_PATH)")

	root.AddCommand(
		newPlanCommand(c),
		newCouponCommand(c),
		newSweepCommand(c),
		newEntitlementCommand(c),
		newTokenCommand(c),
	)
	release = func() {
		if c.cleanup != nil {
			c.cleanup()
			c.cleanup = nil
		}
	}
	return root, release
}

func newPlanCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "plan", Short: "Manage subscription plans"}

	var (
		price    string
		days     int
		features []string
		discount int
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}
			id, err := c.backend.CreatePlan(cmd.Context(), models.Plan{
				Name:               args[0],
				Price:              p,
				DurationDays:       days,
				Features:           features,
				DiscountPercentage: discount,
				IsActive:           true,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan %s created with id %d\n", args[0], id)
			return nil
		},
	}
	add.Flags().StringVar(&price, "price", "", "plan price, e.g. 999.00")
	add.Flags().IntVar(&days, "days", 30, "nominal duration in days")
	add.Flags().StringSliceVar(&features, "feature", nil, "plan feature (repeatable)")
	add.Flags().IntVar(&discount, "discount", 0, "plan discount percentage")
	_ = add.MarkFlagRequired("price")

	cmd.AddCommand(add)
	return cmd
}

func newCouponCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "coupon", Short: "Manage coupons"}

	var (
		discount int
		expires  string
		maxUsage int
		inactive bool
	)
	add := &cobra.Command{
		Use:   "add <code>",
		Short: "Create a coupon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := parseExpiry(expires)
			if err != nil {
				return err
			}
			status := models.CouponActive
			if inactive {
				status = models.CouponInactive
			}
			id, err := c.backend.CreateCoupon(cmd.Context(), models.Coupon{
				Code:               args[0],
				DiscountPercentage: discount,
				ExpirationDate:     exp,
				MaxUsage:           maxUsage,
				Status:             status,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "coupon %s created with id %d\n", strings.ToUpper(strings.TrimSpace(args[0])), id)
			return nil
		},
	}
	add.Flags().IntVar(&discount, "discount", 0, "discount percentage (1-100)")
	add.Flags().StringVar(&expires, "expires", "", "expiration date (YYYY-MM-DD, end of day UTC) or RFC3339 time")
	add.Flags().IntVar(&maxUsage, "max-usage", 1, "how many times the coupon can be redeemed")
	add.Flags().BoolVar(&inactive, "inactive", false, "create the coupon switched off")
	_ = add.MarkFlagRequired("discount")
	_ = add.MarkFlagRequired("expires")

	cmd.AddCommand(add)
	return cmd
}

// parseExpiry принимает дату (действует до конца дня UTC) или точное время RFC3339.
func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiration %q: want YYYY-MM-DD or RFC3339", s)
	}
	return d.Add(24*time.Hour - time.Second), nil
}

func newSweepCommand(c *cli) *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run background sweeps once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch only {
			case "", "all", sweeper.SweepExpire, sweeper.SweepRemind, sweeper.SweepCleanup:
			default:
				return fmt.Errorf("unknown sweep %q", only)
			}
			res, err := c.backend.RunSweep(cmd.Context(), only)
			printSweep(cmd.OutOrStdout(), res)
			return err
		},
	}
	cmd.Flags().StringVar(&only, "only", "all", "run a single sweep: expire, remind or cleanup")
	return cmd
}

func printSweep(w io.Writer, res sweeper.Result) {
	fmt.Fprintf(w, "expired: %d\nreminded: %d\ndeleted: %d\n", res.Expired, res.Reminded, res.Deleted)
}

func newEntitlementCommand(c *cli) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "entitlement <user-id>",
		Short: "Show what paid content a user can access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string]any{}
			ent, err := c.backend.ResolveEntitlement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out["entitlement"] = ent
			if category != "" {
				ok, err := c.backend.HasAccess(cmd.Context(), args[0], category)
				if err != nil {
					return err
				}
				out["category_id"] = category
				out["has_access"] = ok
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "check access to this category")
	return cmd
}

func newTokenCommand(c *cli) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != jwt.RoleUser && role != jwt.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := c.backend.IssueToken(cmd.Context(), args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", jwt.RoleUser, "token role: user or admin")
	return cmd
}
