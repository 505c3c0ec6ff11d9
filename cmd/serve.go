package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept résumé uploads over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default :8080)")
	viper.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	logger, config := setup()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.close(logger)

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := httpapi.NewHandler(c.orchestrator, c.vacancies, c.sink, config.HTTP.MaxUploadBytes, logger)
	srv := &http.Server{
		Addr:         config.HTTP.Listen,
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  config.HTTP.ReadTimeout,
		WriteTimeout: config.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting the cv-screener", zap.String("version", version), zap.String("listen", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal("http server", zap.Error(err))
	case <-ctx.Done():
	}

	// In-flight submissions may still be waiting for the model.
	grace := 2*config.AI.Timeout + 10*time.Second
	logger.Info("shutting down", zap.Duration("grace", grace))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}

	// Review notifications outlive their requests; the notifier closes after them.
	reviewCtx, cancelReviews := context.WithTimeout(context.Background(), config.Review.Timeout+time.Second)
	defer cancelReviews()
	if err := c.orchestrator.WaitReviews(reviewCtx); err != nil {
		logger.Warn("review notifications still in flight", zap.Error(err))
	}
	logger.Info("stopped")
}
