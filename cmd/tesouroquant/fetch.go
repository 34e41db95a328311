package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medicech/tesouro-quant/internal/catalog"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// --- Fetch Command ---

var fetchCmd = &cobra.Command{
	Use:       "fetch [all|catalog|selic|focus|news]",
	Short:     "Download market data into the data directory",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"all", "catalog", "selic", "focus", "news"},
	RunE: func(cmd *cobra.Command, args []string) error {
		what := "all"
		if len(args) == 1 {
			what = args[0]
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx := cmd.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		st := openStack(what == "all" || what == "catalog")
		defer st.Close()
		agg := newAggregator()

		switch what {
		case "all":
			res, err := catalog.NewRefresher(agg, st.store, st.history, st.memory, log).Refresh(ctx)
			if err != nil {
				return err
			}
			snap := res.Snapshot
			fmt.Printf("✅ %d títulos de %s (base %s)\n", len(snap.Bonds), snap.Source, utils.FormatDateBR(snap.BaseDate))
			fmt.Printf("   Selic: %d pontos  Focus: %d linhas  Notícias: %d\n", len(snap.Selic), len(snap.Focus), len(snap.News))
			fmt.Printf("   Arquivo: %s  Histórico: %d linhas\n", res.Path, res.HistoryRows)
			for _, w := range res.Warnings {
				fmt.Printf("   ⚠️  %s\n", w)
			}

		case "catalog":
			bonds, source, err := agg.FetchCatalog(ctx)
			if err != nil {
				return err
			}
			snap := &catalog.Snapshot{
				Source:    source,
				BaseDate:  catalog.LatestBaseDate(bonds),
				FetchedAt: utils.NowBRT(),
				Bonds:     bonds,
			}
			path, err := st.store.Save(ctx, snap)
			if err != nil {
				return err
			}
			if st.history != nil {
				if _, err := st.history.Append(ctx, bonds); err != nil {
					log.WithError(err).Warn("history append failed")
				}
			}
			fmt.Printf("✅ %d títulos de %s → %s\n", len(bonds), source, path)

		case "selic":
			points, err := agg.SGS().SelicMeta(ctx, time.Time{})
			if err != nil {
				return err
			}
			if err := st.store.SaveSelic(points); err != nil {
				return err
			}
			fmt.Printf("✅ %d pontos da Selic meta\n", len(points))

		case "focus":
			exps, err := agg.Focus().All(ctx, nil, 0)
			if err != nil {
				return err
			}
			if err := st.store.SaveFocus(exps); err != nil {
				return err
			}
			fmt.Printf("✅ %d expectativas Focus\n", len(exps))

		case "news":
			limit, _ := cmd.Flags().GetInt("news-limit")
			news, err := agg.News().Latest(ctx, limit)
			if err != nil {
				return err
			}
			if err := st.store.SaveNews(news); err != nil {
				return err
			}
			fmt.Printf("✅ %d notícias\n", len(news))

		default:
			return fmt.Errorf("unknown dataset %q", what)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().Duration("timeout", 2*time.Minute, "overall fetch timeout")
	fetchCmd.Flags().Int("news-limit", 20, "maximum headlines to keep")
}
