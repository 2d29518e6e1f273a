// Command bookrec 运行图书推荐服务，也提供一次性训练与命令行推荐。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rushteam/bookrec/api"
	_ "github.com/rushteam/bookrec/config/builders"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/recommender"
	"github.com/rushteam/bookrec/service"
)

var configPath string

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "bookrec",
		Short:        "Hybrid book recommendation service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $BOOKREC_CONFIG or ./bookrec.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(recommendCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with scheduled training",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			// 先恢复已持久化的模型，保证启动后立即可服务
			if n, err := a.rec.Load(ctx); err != nil {
				if !core.IsModelNotFound(err) {
					a.logger.Warn().Err(err).Msg("load persisted models failed")
				} else {
					a.logger.Info().Msg("no persisted models yet")
				}
			} else {
				a.logger.Info().Int("models", n).Msg("persisted models loaded")
			}

			tree := service.NewTree(a.logger, service.TreeConfig{ShutdownTimeout: a.cfg.Server.ShutdownTimeout})

			srv := api.NewServer(a.rec, a.trainer, a.cfg.Server, a.cfg.Model.MaxK, a.logger)
			tree.AddAPIService(service.NewHTTPService(srv.HTTPServer(), a.cfg.Server.ShutdownTimeout))

			if a.cfg.Training.Schedule != "" || a.cfg.Training.OnStartup {
				sched, err := service.NewSchedulerService(a.trainer, a.cfg.Training.Schedule, a.cfg.Training.OnStartup, a.logger)
				if err != nil {
					return err
				}
				tree.AddModelService(sched)
			}
			if a.cfg.Store.Watch {
				tree.AddModelService(service.NewReloadService(a.rec, a.logger))
			}

			a.logger.Info().Str("addr", a.cfg.Server.Addr).Str("components", a.describe()).Msg("bookrec starting")
			err = tree.Root().Serve(ctx)
			if err != nil && ctx.Err() == nil {
				return err
			}
			a.logger.Info().Msg("bookrec stopped")
			return nil
		},
	}
}

func trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run one training cycle and persist the models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.trainer.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func recommendCmd() *cobra.Command {
	var (
		userID string
		bookID string
		k      int
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print recommendations from the persisted models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := a.rec.Load(ctx); err != nil {
				return fmt.Errorf("load models: %w", err)
			}
			recs, err := a.rec.Recommend(ctx, userID, bookID, k)
			if err != nil {
				return err
			}
			if recs == nil {
				recs = []recommender.Recommendation{}
			}
			return printJSON(cmd, map[string]any{"recommendations": recs})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&bookID, "book", "", "book id the user is viewing")
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "number of recommendations (default: model.default_k)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
