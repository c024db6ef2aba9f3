package indexes

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/compozy/modelstore/cli/helpers"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/engine/model"
	"github.com/compozy/modelstore/engine/user"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentSyncs = 4

// Reporter reconciles one collection's indexes and reports the changes.
type Reporter interface {
	Name() string
	SyncIndexesReport(ctx context.Context) (postgres.IndexSyncReport, error)
}

// Result is the outcome of one collection's sync.
type Result struct {
	Collection string   `json:"collection"`
	Created    []string `json:"created"`
	Dropped    []string `json:"dropped"`
}

// Registry lists every collection known to this binary.
func Registry(leaser model.Leaser) ([]Reporter, error) {
	users, err := user.NewRepository(leaser)
	if err != nil {
		return nil, err
	}
	return []Reporter{users}, nil
}

// NewSyncIndexesCommand creates the sync-indexes command.
func NewSyncIndexesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-indexes",
		Short: "Reconcile declared indexes with the database",
		Long: `Initialize the pool (applying pending migrations), then create missing
and drop stale indexes for every registered collection.`,
		RunE: runSyncIndexes,
	}
	cmd.Flags().StringSlice("collection", nil, "Only sync these collections")
	cmd.Flags().StringP("format", "f", "table", "Output format (json, table)")
	return cmd
}

func runSyncIndexes(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format, err = helpers.OutputFormat(format); err != nil {
		return err
	}
	only, err := cmd.Flags().GetStringSlice("collection")
	if err != nil {
		return fmt.Errorf("failed to get collection flag: %w", err)
	}
	manager, cleanup, err := helpers.SetupManager(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()
	reporters, err := Registry(manager)
	if err != nil {
		return err
	}
	reporters, err = selectCollections(reporters, only)
	if err != nil {
		return err
	}
	results, err := SyncAll(ctx, reporters)
	if err != nil {
		return err
	}
	if format == "json" {
		return helpers.WriteJSON(cmd.OutOrStdout(), results)
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d created, %d dropped\n", r.Collection, len(r.Created), len(r.Dropped))
	}
	return nil
}

func selectCollections(all []Reporter, only []string) ([]Reporter, error) {
	if len(only) == 0 {
		return all, nil
	}
	out := make([]Reporter, 0, len(only))
	for _, name := range only {
		idx := slices.IndexFunc(all, func(r Reporter) bool { return r.Name() == name })
		if idx < 0 {
			return nil, fmt.Errorf("unknown collection %q", name)
		}
		out = append(out, all[idx])
	}
	return out, nil
}

// SyncAll reconciles every reporter concurrently and returns the results
// sorted by collection. The first failure cancels the remaining syncs.
func SyncAll(ctx context.Context, reporters []Reporter) ([]Result, error) {
	log := logger.FromContext(ctx)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSyncs)
	var mu sync.Mutex
	results := make([]Result, 0, len(reporters))
	for _, r := range reporters {
		g.Go(func() error {
			report, err := r.SyncIndexesReport(gCtx)
			if err != nil {
				return fmt.Errorf("sync indexes of %s: %w", r.Name(), err)
			}
			log.Info("Indexes synced",
				"collection", r.Name(),
				"created", len(report.Created),
				"dropped", len(report.Dropped))
			mu.Lock()
			results = append(results, Result{
				Collection: r.Name(),
				Created:    nonNil(report.Created),
				Dropped:    nonNil(report.Dropped),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Collection < results[j].Collection })
	return results, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
