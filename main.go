package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defi_custody/config"
	"github.com/defi_custody/handler"
	"github.com/defi_custody/logger"
	"github.com/defi_custody/model"
	"github.com/defi_custody/repository"
	"github.com/defi_custody/router"
	"github.com/defi_custody/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New("info", false)
		l.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogJSON)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("dial rpc")
	}

	walletRepo := repository.NewWalletRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	userRepo := repository.NewUserRepository(db)

	pool, err := service.NewLendingPool(client,
		common.HexToAddress(cfg.PoolAddress),
		common.HexToAddress(cfg.ReserveAddress),
		logger.WithComponent(log, "pool"))
	if err != nil {
		log.Fatal().Err(err).Msg("init lending pool")
	}
	caster, err := service.NewBroadcaster(client, cfg.SignerURL, cfg.SignerMnemonic, cfg.ChainID,
		logger.WithComponent(log, "broadcaster"))
	if err != nil {
		log.Fatal().Err(err).Msg("init broadcaster")
	}

	walletSvc := service.NewWalletService(walletRepo, logger.WithComponent(log, "wallet"))
	submitSvc := service.NewSubmitService(walletRepo, txRepo, pool, caster,
		logger.WithComponent(log, "submit"))
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret,
		time.Duration(cfg.TokenTTLHours)*time.Hour)
	watcher := service.NewReceiptWatcher(client, txRepo,
		time.Duration(cfg.ReceiptPollSeconds)*time.Second,
		logger.WithComponent(log, "receipts"))

	r := router.SetupRouter(
		handler.NewAuthHandler(authSvc),
		handler.NewWalletHandler(walletSvc),
		handler.NewPoolHandler(submitSvc, walletSvc, pool),
		handler.NewTransactionHandler(submitSvc),
		authSvc,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watcher.Run(ctx)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("custody service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
