package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/jmehdipour/cablesync/internal/db"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmehdipour/cablesync/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedDemo bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed admins, the placeholder account and (optionally) demo customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx := context.Background()
		if err := seedAdmins(ctx, repository.NewAdminsRepository(sqlDB), cfg.Admin.Emails); err != nil {
			return err
		}
		if err := seedCustomers(ctx, sqlDB, repository.NewCustomersRepository(sqlDB), cfg, seedDemo); err != nil {
			return err
		}

		logger.Log.Info("seed completed", zap.Int("admins", len(cfg.Admin.Emails)), zap.Bool("demo", seedDemo))
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedDemo, "demo", false, "also insert demo customers in every status")
}

func seedAdmins(ctx context.Context, admins repository.AdminsRepository, emails []string) error {
	for _, e := range emails {
		if err := admins.Add(ctx, e); err != nil {
			return fmt.Errorf("add admin %q: %w", e, err)
		}
	}
	return nil
}

// seedCustomers upserts the placeholder account the admin list hides and,
// with demo set, one customer per status. Idempotent.
func seedCustomers(ctx context.Context, dbx *sqlx.DB, repo repository.CustomersRepository, cfg config.Config, demo bool) error {
	customers := []model.Customer{
		model.NewTransient(cfg.Admin.PlaceholderEmail, "Example", "Account"),
	}
	if demo {
		customers = append(customers, demoCustomers()...)
	}

	tx, err := dbx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range customers {
		if err := repo.Upsert(ctx, tx, c); err != nil {
			return fmt.Errorf("upsert customer %q: %w", c.Email, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit customers: %w", err)
	}
	return nil
}

func demoCustomers() []model.Customer {
	dev := model.Devices{{MACAddress: "00:1A:2B:3C:4D:5E", DeviceKey: "demo-key"}}
	mk := func(email, first, last string, st model.Status, sub, start, end string) model.Customer {
		c := model.NewTransient(email, first, last)
		c.Phone = "(555) 010-0000"
		c.Devices = dev
		c.Status = st
		if sub != "" {
			c.SubscriptionID = &sub
		}
		if start != "" {
			c.ServiceStartDate, c.ServiceEndDate = &start, &end
		}
		return c
	}
	return []model.Customer{
		mk("nina.noservice@example.com", "Nina", "Noservice", model.StatusNoService, "", "", ""),
		mk("pete.pending@example.com", "Pete", "Pending", model.StatusPendingActivation, "I-DEMO-PENDING", "", ""),
		mk("ava.active@example.com", "Ava", "Active", model.StatusActive, "I-DEMO-ACTIVE", "01/01/2025", "12/31/2025"),
		mk("carl.canceled@example.com", "Carl", "Canceled", model.StatusCanceled, "I-DEMO-CANCELED", "01/01/2025", "06/30/2025"),
		mk("paula.processed@example.com", "Paula", "Processed", model.StatusCanceledProcessed, "I-DEMO-PROCESSED", "", ""),
	}
}
