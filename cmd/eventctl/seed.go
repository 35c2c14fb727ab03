package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/prohmpiriya/event-registration/internal/di"
	"github.com/prohmpiriya/event-registration/internal/dto"
	"github.com/prohmpiriya/event-registration/internal/repository"
	"github.com/prohmpiriya/event-registration/internal/service"
	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/logger"
	pkgredis "github.com/prohmpiriya/event-registration/pkg/redis"
)

// seedOrganizer owns the sample events
const seedOrganizer = "Admin User"

func (c *cli) newSeedCmd() *cobra.Command {
	var destroy bool

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace all events with the sample data set",
		Long: `Remove every event and registration, then insert the sample events.
With --destroy the store is only emptied.

Examples:
  eventctl seed
  eventctl seed -d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			infra, err := di.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer infra.Close(context.Background())

			repos, err := infra.Repositories(cfg)
			if err != nil {
				return err
			}
			// Evict the API servers' shared event cache along with the data
			eventRepo := repos.Events
			if cfg.Redis.Enabled && cfg.Store.Driver != config.StoreDriverMemory {
				redisClient, err := pkgredis.NewClient(ctx, pkgredis.ConfigFrom(&cfg.Redis))
				if err != nil {
					logger.Get().Warn(fmt.Sprintf("Redis unavailable, cached events expire by TTL: %v", err))
				} else {
					defer redisClient.Close()
					eventRepo = repository.NewCachedEventRepository(eventRepo, repository.NewRedisEventCache(redisClient, cfg.Cache.EventTTL), nil)
				}
			}
			events := service.NewEventService(eventRepo, repos.Registrations)

			if destroy {
				return destroyData(ctx, cmd.OutOrStdout(), events)
			}
			return importData(ctx, cmd.OutOrStdout(), events, time.Now())
		},
	}

	seedCmd.Flags().BoolVarP(&destroy, "destroy", "d", false, "only delete events and registrations")
	return seedCmd
}

func importData(ctx context.Context, out io.Writer, events service.EventService, now time.Time) error {
	if _, err := events.DeleteAllEvents(ctx); err != nil {
		return fmt.Errorf("clearing events: %w", err)
	}

	samples := sampleEvents(now)
	for _, req := range samples {
		if _, err := events.CreateEvent(ctx, seedOrganizer, req); err != nil {
			return fmt.Errorf("creating %q: %w", req.Name, err)
		}
	}

	fmt.Fprintf(out, "Data imported: %d events\n", len(samples))
	return nil
}

func destroyData(ctx context.Context, out io.Writer, events service.EventService) error {
	n, err := events.DeleteAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	fmt.Fprintf(out, "Data destroyed: %d events\n", n)
	return nil
}

// sampleEvents returns the seed catalog dated relative to now, so most
// events stay upcoming
func sampleEvents(now time.Time) []*dto.CreateEventRequest {
	day := func(n int, hour int) time.Time {
		d := now.UTC().AddDate(0, 0, n)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
	}
	capacity := func(n int) *int { return &n }

	return []*dto.CreateEventRequest{
		{
			Name:        "Go Concurrency Workshop",
			Description: "Hands-on session on goroutines, channels and the sync package.",
			Date:        day(7, 9),
			Location:    "Bangkok",
			Category:    "Technology",
			Capacity:    capacity(30),
		},
		{
			Name:        "City Marathon 2026",
			Description: "Full and half marathon through the old town.",
			Date:        day(21, 5),
			Location:    "Chiang Mai",
			Category:    "Sports",
			Capacity:    capacity(500),
		},
		{
			Name:        "Jazz in the Park",
			Description: "Open air evening concert with local jazz bands.",
			Date:        day(14, 18),
			Location:    "Lumphini Park, Bangkok",
			Category:    "Music",
			Capacity:    capacity(200),
		},
		{
			Name:        "Startup Pitch Night",
			Description: "Ten early-stage teams pitch to a panel of investors.",
			Date:        day(3, 19),
			Location:    "Bangkok",
			Category:    "Business",
			Capacity:    capacity(80),
		},
		{
			Name:        "Photography Walk",
			Description: "Guided street photography walk, bring any camera.",
			Date:        day(10, 7),
			Location:    "Phuket",
			Category:    "Arts",
			Capacity:    capacity(15),
		},
		{
			Name:        "Cloud Native Meetup",
			Description: "Talks on Kubernetes operators and service meshes.",
			Date:        day(-5, 18),
			Location:    "Bangkok",
			Category:    "Technology",
			Capacity:    capacity(60),
		},
		{
			Name:        "Private Tasting",
			Description: "Chef's table tasting menu, a single seat.",
			Date:        day(30, 20),
			Location:    "Chiang Mai",
			Category:    "Food",
			Capacity:    capacity(1),
		},
	}
}
