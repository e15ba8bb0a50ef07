package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jmehdipour/cablesync/internal/client"
	"github.com/jmehdipour/cablesync/internal/console"
	"github.com/spf13/cobra"
)

var (
	meToken        string
	meSubscription string
	mePhone        string
	meDevices      []string
)

func newMeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Customer self-service over the HTTP API",
	}
	cmd.PersistentFlags().StringVar(&meToken, "token", "", "customer session token (defaults to client.token)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the caller's record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSelfService(cmd)
			if err != nil {
				return err
			}
			printSelf(cmd.OutOrStdout(), s)
			return nil
		},
	}

	checkout := &cobra.Command{
		Use:   "checkout",
		Short: "Record an approved subscription checkout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSelfService(cmd)
			if err != nil {
				return err
			}
			if err := checkoutSelf(cmdContext(cmd), s, meSubscription, mePhone, meDevices); err != nil {
				return err
			}
			printSelf(cmd.OutOrStdout(), s)
			return nil
		},
	}
	checkout.Flags().StringVar(&meSubscription, "subscription", "", "subscription id approved by the payment provider")
	checkout.Flags().StringVar(&mePhone, "phone", "", "contact phone (10 digits)")
	checkout.Flags().StringArrayVar(&meDevices, "device", nil, "device as MAC=KEY; repeat for several")
	_ = checkout.MarkFlagRequired("subscription")

	cmd.AddCommand(show, checkout)
	return cmd
}

func newSelfService(cmd *cobra.Command) (*console.SelfService, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if meToken != "" {
		cfg.Client.Token = meToken
	}
	s := console.NewSelfService(client.FromConfig(cfg.Client))
	if err := s.Load(cmdContext(cmd)); err != nil {
		return nil, err
	}
	return s, nil
}

// checkoutSelf fills the form from flags and submits it. Flags left empty
// keep what the stored record already holds.
func checkoutSelf(ctx context.Context, s *console.SelfService, subscriptionID, phone string, devices []string) error {
	if phone != "" {
		s.SetPhone(phone)
	}
	if len(devices) > 0 {
		for len(s.Devices()) > 0 {
			_ = s.RemoveDevice(0)
		}
		for i, spec := range devices {
			mac, key, err := parseDevice(spec)
			if err != nil {
				return err
			}
			s.AddDevice()
			if err := s.EditDevice(i, mac, key); err != nil {
				return err
			}
		}
	}
	if !s.CanCheckout() {
		return fmt.Errorf("cannot check out as %s: a 10-digit phone and complete devices are required", s.Record().Status.Label())
	}
	return s.CheckoutSucceeded(ctx, subscriptionID)
}

func parseDevice(spec string) (mac, key string, err error) {
	mac, key, ok := strings.Cut(spec, "=")
	mac, key = strings.TrimSpace(mac), strings.TrimSpace(key)
	if !ok || mac == "" || key == "" {
		return "", "", fmt.Errorf("device %q: want MAC=KEY", spec)
	}
	return mac, key, nil
}

func printSelf(w io.Writer, s *console.SelfService) {
	rec := s.Record()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "EMAIL\t%s\n", rec.Email)
	fmt.Fprintf(tw, "NAME\t%s\n", strings.TrimSpace(rec.FirstName+" "+rec.LastName))
	fmt.Fprintf(tw, "STATUS\t%s\n", rec.Status.Label())
	fmt.Fprintf(tw, "PHONE\t%s\n", s.Phone())
	fmt.Fprintf(tw, "SUBSCRIPTION\t%s\n", rec.Subscription())
	for i, d := range s.Devices() {
		fmt.Fprintf(tw, "DEVICE %d\t%s\t%s\n", i+1, d.MACAddress, d.DeviceKey)
	}
	fmt.Fprintf(tw, "STORED\t%t\n", s.Stored())
	_ = tw.Flush()
}
