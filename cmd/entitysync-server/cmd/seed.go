package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"entitysync/internal/core"
	"entitysync/internal/infra/logging"
	"entitysync/internal/infra/persistence"
	"entitysync/pkg/domain"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.json>",
	Short: "Load fixture entities into the configured store",
	Long: `Load fixture entities into the configured store in one transaction.

The file holds one array per kind, keyed by its plural name:

  {"teams": [{"id": 7, "name": "Acme", "url": "acme"}], "users": [...]}

Examples:
  entitysync-server seed fixtures.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := persistence.Open(ctx, core.NewDefaultRulesEngine())
		if err != nil {
			return err
		}
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		n, err := seed(ctx, store, raw)
		if err != nil {
			return err
		}
		logging.NewGlog("seed").Info("fixtures loaded", "file", args[0], "entities", n)
		fmt.Printf("loaded %d entities\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedKinds = []domain.EntityKind{domain.KindUser, domain.KindProject, domain.KindTeam, domain.KindCollection}

// seed creates every fixture in raw and returns how many were written.
// Nothing is written when any fixture is rejected.
func seed(ctx context.Context, store domain.PersistentStore, raw []byte) (int, error) {
	var buckets map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &buckets); err != nil {
		return 0, fmt.Errorf("decode fixtures: %w", err)
	}
	known := make(map[string]bool, len(seedKinds))
	var entities []domain.Entity
	for _, kind := range seedKinds {
		known[kind.Plural()] = true
		for i, item := range buckets[kind.Plural()] {
			entity, err := domain.DecodeEntity(kind, item)
			if err != nil {
				return 0, fmt.Errorf("%s[%d]: %w", kind.Plural(), i, err)
			}
			entities = append(entities, entity)
		}
	}
	for name := range buckets {
		if !known[name] {
			return 0, fmt.Errorf("unknown fixture bucket %q", name)
		}
	}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, entity := range entities {
			if _, err := tx.Create(entity); err != nil {
				return fmt.Errorf("create %s: %w", entity.Ref(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entities), nil
}
