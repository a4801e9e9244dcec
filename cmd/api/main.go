package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/safar/fashion-store/internal/api"
	"github.com/safar/fashion-store/internal/auth"
	"github.com/safar/fashion-store/internal/cart"
	"github.com/safar/fashion-store/internal/catalog"
	"github.com/safar/fashion-store/internal/checkout"
	"github.com/safar/fashion-store/internal/config"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/discount"
	"github.com/safar/fashion-store/internal/fulfillment"
	"github.com/safar/fashion-store/internal/mail"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/notify"
	"github.com/safar/fashion-store/internal/payment"
	"github.com/safar/fashion-store/internal/returns"
	"github.com/safar/fashion-store/internal/store"
)

const memoryQueueWorkers = 4

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatalf("Run migrations: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connect to redis: %v", err)
	}

	mailer := mail.NewMailer(mail.Settings{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		User:       cfg.SMTP.User,
		Password:   cfg.SMTP.Password,
		SenderName: cfg.SMTP.SenderName,
		SiteURL:    cfg.Shop.SiteURL,
		Currency:   cfg.Shop.Currency,
	})

	dispatcher := notify.NewDispatcher(notify.Deps{
		LoadOrder: func(ctx context.Context, id string) (*models.Order, error) {
			return store.GetOrder(ctx, db, id)
		},
		LoadReturn: func(ctx context.Context, id string) (*models.ReturnRequest, error) {
			return store.GetReturnRequest(ctx, db, id)
		},
		IssueInvoice: func(ctx context.Context, orderID string) (*models.Invoice, error) {
			return store.IssueInvoice(ctx, db, orderID)
		},
		Mailer: mailer,
	})
	policy := notify.RetryPolicy{MaxAttempts: cfg.AMQP.MaxAttempts, Backoff: cfg.AMQP.RetryBackoff}

	queue, closeQueue := startQueue(ctx, cfg, dispatcher, policy)
	defer closeQueue()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(cfg, db, rdb, queue),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

// startQueue prefers RabbitMQ and falls back to in-process workers when no
// broker URL is configured.
func startQueue(ctx context.Context, cfg *config.Config, d *notify.Dispatcher, policy notify.RetryPolicy) (notify.Queue, func()) {
	if cfg.AMQP.URL == "" {
		q := notify.NewMemoryQueue(d.Handle, policy, 256)
		q.Start(memoryQueueWorkers)
		log.Printf("Task queue: in-process (%d workers)", memoryQueueWorkers)
		return q, q.Close
	}

	mq, err := notify.NewRabbitMQ(cfg.AMQP.URL, notify.RabbitMQSettings{
		Exchange:        cfg.AMQP.Exchange,
		Queue:           cfg.AMQP.Queue,
		DeadLetterQueue: cfg.AMQP.DeadLetterQueue,
	})
	if err != nil {
		log.Fatalf("Connect to rabbitmq: %v", err)
	}
	if err := mq.SetupQueues(); err != nil {
		log.Fatalf("Setup rabbitmq queues: %v", err)
	}

	go func() {
		if err := mq.Consume(ctx, d.Handle, policy); err != nil {
			log.Printf("Task consumer stopped: %v", err)
		}
	}()
	log.Printf("Task queue: rabbitmq %s", cfg.AMQP.Queue)
	return mq, mq.Close
}

func newRouter(cfg *config.Config, db *sql.DB, rdb *redis.Client, queue notify.Queue) http.Handler {
	carts := cart.NewService(cart.NewRedisStore(rdb, cfg.Redis.CartTTL),
		func(ctx context.Context, productID string) (cart.ProductRef, error) {
			p, err := store.GetProduct(ctx, db, productID)
			if err != nil {
				return cart.ProductRef{}, err
			}
			if !p.IsActive {
				return cart.ProductRef{}, database.ErrProductNotFound
			}
			return cart.ProductRef{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, Image: p.FirstImage()}, nil
		})

	discounts := discount.NewValidator(func(ctx context.Context, code string) (*models.DiscountCode, error) {
		return store.GetDiscountCodeByCode(ctx, db, code)
	}, cfg.Shop.Currency)

	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, payment.BreakerSettings{
		MaxFailures: cfg.Stripe.BreakerMaxFailures,
		Timeout:     cfg.Stripe.BreakerTimeout,
	})

	checkoutSvc := checkout.NewService(
		func(ctx context.Context, ids []string) (map[string]models.Product, error) {
			return store.GetProductsByIDs(ctx, db, ids)
		},
		discounts,
		func(ctx context.Context, code string) error {
			return store.RedeemDiscountCode(ctx, db, code)
		},
		gateway,
		checkout.Options{
			SiteURL:               cfg.Shop.SiteURL,
			Currency:              cfg.Shop.Currency,
			FreeShippingThreshold: cfg.Shop.FreeShippingThreshold,
			ShippingFee:           cfg.Shop.ShippingFee,
			AllowedCountries:      cfg.Shop.AllowedCountries,
			PaymentMethods:        cfg.Stripe.PaymentMethods,
		})

	verifier, err := payment.NewVerifier(cfg.Stripe.WebhookSecret)
	if err != nil {
		log.Fatalf("Webhook verifier: %v", err)
	}
	fulfil := fulfillment.NewService(verifier,
		func(ctx context.Context, req store.CheckoutOrder) (*models.Order, error) {
			return store.CreateOrderFromCheckout(ctx, db, req)
		},
		func(ctx context.Context, sessionID string) (*models.Order, error) {
			return store.GetOrderBySessionID(ctx, db, sessionID)
		},
		queue)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	srv := api.NewServer(api.Deps{
		DB: db,
		Categories: catalog.NewCategoryCache(func(ctx context.Context) ([]models.Category, error) {
			return store.ListCategories(ctx, db)
		}, cfg.Shop.CategoryCacheTTL),
		Search: func(ctx context.Context, term string, limit int) ([]models.Product, error) {
			return store.SearchProducts(ctx, db, term, limit)
		},
		Carts:       carts,
		Discounts:   discounts,
		Checkout:    checkoutSvc,
		Fulfillment: fulfil,
		Orders:      returns.NewService(db, queue),
		Accounts:    auth.NewAccounts(db),
		Tokens:      tokens,
		Sessions:    auth.NewMiddleware(tokens, cfg.Auth.IsAdmin, cfg.Auth.CookieSecure),
		Queue:       queue,
		WelcomeCode: cfg.Shop.WelcomeCode,
		PagesDir:    cfg.Server.PagesDir,
		CartCookie: api.CookieSettings{
			MaxAge: int(cfg.Redis.CartTTL.Seconds()),
			Secure: cfg.Auth.CookieSecure,
		},
	})
	return srv.Routes(cfg.Server.TrustedProxies)
}
