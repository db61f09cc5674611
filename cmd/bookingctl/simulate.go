package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/therapy-booking/internal/api"
	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/interval"
)

type simOptions struct {
	APIBaseURL  string
	HostID      string
	Date        string
	SessionType string
	Workers     int
	Attempts    int
	Contention  int
	ClientLimit int
}

type outcome struct {
	status  int
	latency time.Duration
	slot    api.SlotEntry
	err     error
}

type simReport struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (r *simReport) record(o outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func simulateCmd() *cobra.Command {
	var opts simOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Race concurrent bookings for the same provider slots against a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.APIBaseURL, "api", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&opts.HostID, "host", "", "Provider ID (defaults to the first seeded provider)")
	cmd.Flags().StringVar(&opts.Date, "date", time.Now().AddDate(0, 0, 1).Format(time.DateOnly), "Date to book on, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.SessionType, "session-type", "standard", "Session type ID")
	cmd.Flags().IntVar(&opts.Workers, "workers", 20, "Concurrent workers")
	cmd.Flags().IntVar(&opts.Attempts, "attempts", 200, "Total booking attempts")
	cmd.Flags().IntVar(&opts.Contention, "contention", 3, "Number of slots all workers compete for")
	cmd.Flags().IntVar(&opts.ClientLimit, "clients", 500, "Maximum number of seeded clients to book as")
	return cmd
}

func runSimulation(ctx context.Context, opts simOptions) error {
	if opts.Workers <= 0 || opts.Attempts <= 0 || opts.Contention <= 0 {
		return errors.New("workers, attempts and contention must be positive")
	}

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if opts.HostID == "" {
		if err := pool.QueryRow(ctx, `SELECT id::text FROM users WHERE role = 'provider' ORDER BY created_at LIMIT 1`).Scan(&opts.HostID); err != nil {
			return fmt.Errorf("pick provider: %w", err)
		}
	}
	clients, err := loadClients(ctx, pool, opts.ClientLimit)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	slots, err := fetchSlots(ctx, httpClient, opts)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return fmt.Errorf("provider %s has no free slots on %s", opts.HostID, opts.Date)
	}
	targets := slots[:min(opts.Contention, len(slots))]

	fmt.Printf("Racing %d attempts from %d workers over %d slot(s) of provider %s on %s\n",
		opts.Attempts, opts.Workers, len(targets), opts.HostID, opts.Date)

	report := &simReport{}
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for range opts.Attempts {
		slot := targets[rand.IntN(len(targets))]
		client := clients[rand.IntN(len(clients))]
		g.Go(func() error {
			report.record(book(gctx, httpClient, opts, client, slot))
			return nil
		})
	}
	_ = g.Wait()

	printReport(report, time.Since(started))
	return nil
}

func loadClients(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM users WHERE role = 'client' LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no clients seeded, run bookingctl seed first")
	}
	return out, nil
}

func fetchSlots(ctx context.Context, c *http.Client, opts simOptions) ([]api.SlotEntry, error) {
	q := url.Values{"date": {opts.Date}, "session_type": {opts.SessionType}}
	endpoint := fmt.Sprintf("%s/providers/%s/slots?%s", opts.APIBaseURL, opts.HostID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list slots: unexpected status %d", resp.StatusCode)
	}
	var out api.SlotsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return out.Slots, nil
}

func book(ctx context.Context, c *http.Client, opts simOptions, client uuid.UUID, slot api.SlotEntry) outcome {
	body, _ := json.Marshal(api.BookRequest{
		ClientID:      client.String(),
		HostID:        opts.HostID,
		SessionTypeID: opts.SessionType,
		Start:         slot.Start,
	})

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return outcome{err: err, slot: slot}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	o := outcome{latency: time.Since(start), slot: slot, err: err}
	if err != nil {
		return o
	}
	defer resp.Body.Close()
	o.status = resp.StatusCode

	if resp.StatusCode == http.StatusCreated {
		var res booking.Result
		if err := json.NewDecoder(resp.Body).Decode(&res); err == nil && res.Appointment != nil {
			o.slot = api.SlotEntry{Start: res.Appointment.StartTime, End: res.Appointment.EndTime}
		}
	}
	return o
}

func printReport(r *simReport, elapsed time.Duration) {
	var (
		created, conflicts, failed int
		latencies                  []time.Duration
		held                       []api.SlotEntry
	)
	for _, o := range r.outcomes {
		switch {
		case o.err != nil:
			failed++
			continue
		case o.status == http.StatusCreated:
			created++
			held = append(held, o.slot)
		case o.status == http.StatusConflict:
			conflicts++
		default:
			failed++
		}
		latencies = append(latencies, o.latency)
	}
	slices.Sort(latencies)

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println()
	bold.Println("SIMULATION REPORT")
	fmt.Printf("Elapsed:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Attempts:   %d\n", len(r.outcomes))
	fmt.Printf("Held:       %s\n", green(created))
	fmt.Printf("Conflicts:  %s\n", yellow(conflicts))
	if failed > 0 {
		fmt.Printf("Errors:     %s\n", red(failed))
	}
	if len(latencies) > 0 {
		fmt.Printf("Latency:    p50=%s p95=%s max=%s\n",
			percentile(latencies, 50).Round(time.Millisecond),
			percentile(latencies, 95).Round(time.Millisecond),
			latencies[len(latencies)-1].Round(time.Millisecond))
	}

	if overlaps := countOverlaps(held); overlaps > 0 {
		fmt.Printf("Overlapping holds: %s\n", red(overlaps))
	} else {
		fmt.Printf("Overlapping holds: %s\n", green(0))
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// countOverlaps counts pairs of successful holds whose half-open ranges
// intersect. Anything above zero is a double booking.
func countOverlaps(held []api.SlotEntry) int {
	n := 0
	for i := range held {
		for j := i + 1; j < len(held); j++ {
			a := interval.TimeRange{Start: held[i].Start, End: held[i].End}
			b := interval.TimeRange{Start: held[j].Start, End: held[j].End}
			if interval.Overlaps(a, b) {
				n++
			}
		}
	}
	return n
}
