package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jmehdipour/cablesync/internal/client"
	"github.com/jmehdipour/cablesync/internal/console"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/spf13/cobra"
)

var (
	adminYes     bool
	adminStatus  string
	adminOrderBy string
	adminStart   string
	adminEnd     string
	adminLimit   int
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator console over the HTTP API (uses client.token from config)",
	}
	cmd.PersistentFlags().BoolVarP(&adminYes, "yes", "y", false, "confirm destructive actions without prompting")

	list := &cobra.Command{
		Use:   "list",
		Short: "List customers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st model.Status
			if s := strings.TrimSpace(adminStatus); s != "" && !strings.EqualFold(s, "all") {
				parsed, ok := model.ParseStatus(s)
				if !ok {
					return fmt.Errorf("unknown status %q", s)
				}
				st = parsed
			}
			a, err := newConsole(cmd)
			if err != nil {
				return err
			}
			if err := a.Load(cmdContext(cmd), st, adminOrderBy); err != nil {
				return err
			}
			printRows(cmd.OutOrStdout(), a.Rows())
			return nil
		},
	}
	list.Flags().StringVar(&adminStatus, "status", "All", "filter by status")
	list.Flags().StringVar(&adminOrderBy, "order-by", "", "sort field (email, firstName, lastName, status, ...)")

	activate := &cobra.Command{
		Use:   "activate <customer-id>",
		Short: "Activate service for a customer (dates as YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(ctx context.Context, a *console.Admin) (client.Row, error) {
				return a.Activate(ctx, args[0], adminStart, adminEnd)
			})
		},
	}
	activate.Flags().StringVar(&adminStart, "start", "", "service start date (YYYY-MM-DD)")
	activate.Flags().StringVar(&adminEnd, "end", "", "service end date (YYYY-MM-DD)")

	endService := &cobra.Command{
		Use:   "end-service <customer-id>",
		Short: "End an active customer's service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(ctx context.Context, a *console.Admin) (client.Row, error) {
				return a.EndService(ctx, args[0])
			})
		},
	}

	process := &cobra.Command{
		Use:   "process-cancellation <customer-id>",
		Short: "Mark a canceled customer as processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(ctx context.Context, a *console.Admin) (client.Row, error) {
				return a.ProcessCancellation(ctx, args[0])
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <customer-id>",
		Short: "Delete a customer record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadedConsole(cmd)
			if err != nil {
				return err
			}
			if err := a.Delete(cmdContext(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", args[0])
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history <customer-id>",
		Short: "Show a customer's status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rows, err := client.FromConfig(cfg.Client).History(cmdContext(cmd), args[0], adminLimit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tFROM\tTO\tACTOR\tSUBSCRIPTION")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.At.Format("2006-01-02 15:04:05"), r.FromStatus, r.ToStatus, r.Actor, r.SubscriptionID)
			}
			return tw.Flush()
		},
	}
	history.Flags().IntVar(&adminLimit, "limit", 50, "max rows")

	cmd.AddCommand(list, activate, endService, process, del, history)
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newConsole(cmd *cobra.Command) (*console.Admin, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	confirm := func(prompt string) bool {
		if adminYes {
			return true
		}
		return promptYes(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
	}
	return console.NewAdmin(client.FromConfig(cfg.Client), confirm), nil
}

// loadedConsole loads the full list so prompts can name the customer.
func loadedConsole(cmd *cobra.Command) (*console.Admin, error) {
	a, err := newConsole(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.Load(cmdContext(cmd), "", ""); err != nil {
		return nil, err
	}
	return a, nil
}

type transition func(context.Context, *console.Admin) (client.Row, error)

func mutate(cmd *cobra.Command, fn transition) error {
	a, err := loadedConsole(cmd)
	if err != nil {
		return err
	}
	return applyTransition(cmdContext(cmd), cmd.OutOrStdout(), a, fn)
}

// applyTransition runs fn and prints the row the API acknowledged.
func applyTransition(ctx context.Context, w io.Writer, a *console.Admin, fn transition) error {
	row, err := fn(ctx, a)
	if err != nil {
		return err
	}
	printRows(w, []client.Row{row})
	return nil
}

func promptYes(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printRows(w io.Writer, rows []client.Row) {
	if w == nil {
		w = os.Stdout
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tSTATUS\tSTART\tEND\tSUBSCRIPTION\tNOTE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, strings.TrimSpace(r.FirstName+" "+r.LastName), r.Phone, r.Status,
			deref(r.ServiceStartDate), deref(r.ServiceEndDate), r.Subscription(), r.Notification)
	}
	_ = tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
