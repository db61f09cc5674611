package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var providerZones = []string{
	"UTC",
	"Europe/London",
	"Europe/Berlin",
	"America/New_York",
	"America/Los_Angeles",
	"Asia/Tokyo",
}

func seedCmd() *cobra.Command {
	var (
		providers int
		clients   int
		step      int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create fake providers with weekday availability and fake clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			faker := gofakeit.New(0)

			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			for range providers {
				if err := seedProvider(ctx, tx, faker, step); err != nil {
					return fmt.Errorf("seed provider: %w", err)
				}
			}
			for range clients {
				if err := seedUser(ctx, tx, faker, uuid.New(), "client", "UTC"); err != nil {
					return fmt.Errorf("seed client: %w", err)
				}
			}

			if err := tx.Commit(ctx); err != nil {
				return err
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s %d providers, %d clients\n", green("seeded"), providers, clients)
			return nil
		},
	}
	cmd.Flags().IntVar(&providers, "providers", 10, "Number of providers to create")
	cmd.Flags().IntVar(&clients, "clients", 200, "Number of clients to create")
	cmd.Flags().IntVar(&step, "slot-interval", 15, "Slot interval in minutes for new providers")
	return cmd
}

func seedUser(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker, id uuid.UUID, role, tz string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, name, email, phone, role, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, id, faker.Name(), faker.Email(), faker.Phone(), role, tz)
	return err
}

// seedProvider opens Monday to Friday with a randomised working day.
func seedProvider(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker, step int) error {
	id := uuid.New()
	tz := providerZones[faker.Number(0, len(providerZones)-1)]

	if err := seedUser(ctx, tx, faker, id, "provider", tz); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO availability_settings (host_id, slot_interval_minutes, timezone)
		VALUES ($1, $2, $3)
	`, id, step, tz)
	if err != nil {
		return err
	}

	startMinute := faker.Number(8, 10) * 60
	endMinute := faker.Number(16, 18) * 60
	for day := time.Monday; day <= time.Friday; day++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO recurring_rules (host_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, id, int(day), startMinute, endMinute)
		if err != nil {
			return err
		}
	}
	return nil
}
