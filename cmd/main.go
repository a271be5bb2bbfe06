package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SergeyBogomolovv/checkout-service/internal/app"
	"github.com/SergeyBogomolovv/checkout-service/internal/config"
	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
	"github.com/SergeyBogomolovv/checkout-service/internal/events"
	"github.com/SergeyBogomolovv/checkout-service/internal/handler"
	"github.com/SergeyBogomolovv/checkout-service/internal/payment"
	"github.com/SergeyBogomolovv/checkout-service/internal/postgres"
	"github.com/SergeyBogomolovv/checkout-service/internal/repo"
	"github.com/SergeyBogomolovv/checkout-service/internal/service"
	"github.com/SergeyBogomolovv/checkout-service/internal/session"
	"github.com/SergeyBogomolovv/checkout-service/pkg/trm"

	"github.com/joho/godotenv"
)

func main() {
	conf := config.New()
	logger := newLogger(conf.Env)
	panicIfErr("invalid config", conf.Validate())

	db, err := postgres.New(conf.Postgres)
	panicIfErr("failed to connect to db", err)
	defer db.Close()
	logger.Info("postgres connected")

	panicIfErr("failed to apply migrations", postgres.Migrate(db))

	ordersRepo := repo.NewOrdersRepo(db)
	productsRepo := repo.NewProductsRepo(db)
	txManager := trm.NewManager(db)
	sessions := session.New(conf.Session.Capacity, conf.Session.TTL)

	stripeGateway := payment.NewStripeGateway(logger, conf.Stripe)
	mpesaGateway := payment.NewMpesaGateway(logger, conf.Mpesa)
	gateways := map[entities.PaymentMethod]payment.Gateway{
		entities.PaymentCard:  stripeGateway,
		entities.PaymentMpesa: mpesaGateway,
	}

	producer := events.NewProducer(logger, conf.Kafka)

	cartService := service.NewCartService(logger, sessions, productsRepo)
	checkoutService := service.NewCheckoutService(
		logger, txManager, ordersRepo, productsRepo, sessions, gateways, producer)

	httpHandler := handler.NewHTTPHandler(logger, productsRepo, cartService, checkoutService, stripeGateway)
	handler.RegisterMetrics()

	app := app.New(logger, conf)

	app.SetHTTPHandlers(httpHandler)
	app.SetStarters(sessions)
	app.SetClosers(producer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	panicIfErr("failed to start app", app.Start(ctx))
	<-ctx.Done()
	panicIfErr("failed to stop app", app.Stop())
}

func init() {
	godotenv.Load()
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func panicIfErr(prefix string, err error) {
	if err != nil {
		panic(prefix + ": " + err.Error())
	}
}
