package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medicech/tesouro-quant/api"
	"github.com/medicech/tesouro-quant/internal/catalog"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.API.Port = port
		}

		st := openStack(true)
		defer st.Close()
		data := st.provider()
		refresher := catalog.NewRefresher(newAggregator(), st.store, st.history, st.memory, log)

		adv, err := newAdvisor(ctx, data)
		if err != nil {
			log.WithError(err).Warn("assistant disabled")
		} else if adv == nil {
			log.Warn("no LLM configured; /api/v1/chat is disabled")
		}

		if refreshNow, _ := cmd.Flags().GetBool("refresh"); refreshNow {
			if _, err := refresher.Refresh(ctx); err != nil {
				log.WithError(err).Warn("initial refresh failed; serving stored data")
			}
		}

		srv, err := api.NewServer(cfg, api.Deps{
			Data:      data,
			Refresher: refresher,
			History:   st.history,
			Advisor:   adv,
			Engine:    newEngine(),
			Logger:    log,
			Version:   version,
		})
		if err != nil {
			return err
		}

		if every, _ := cmd.Flags().GetDuration("refresh-every"); every > 0 {
			go func() {
				ticker := time.NewTicker(every)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if !utils.IsBusinessDay(utils.NowBRT()) {
							continue
						}
						if _, err := refresher.Refresh(ctx); err != nil {
							log.WithError(err).Warn("scheduled refresh failed")
						}
					}
				}
			}()
		}

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 Starting tesouro-quant API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "override api.port")
	serveCmd.Flags().Bool("refresh", false, "refresh market data before serving")
	serveCmd.Flags().Duration("refresh-every", 0, "refresh market data periodically on business days (0 disables)")
}
