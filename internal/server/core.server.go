package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"xconfess-notify/internal/config"
	hrest "xconfess-notify/internal/handler/http"
	wshandler "xconfess-notify/internal/handler/ws"
	"xconfess-notify/internal/middleware"
	"xconfess-notify/internal/queue"
	"xconfess-notify/internal/repository"
	"xconfess-notify/internal/router"
	"xconfess-notify/internal/usecase"
	"xconfess-notify/pkg/jwtutil"
	"xconfess-notify/pkg/mailer"
	ws "xconfess-notify/pkg/notifier/ws"
	"xconfess-notify/pkg/template"
)

// NewServer wires the full service: repository, queue, workers, live
// fan-out, and HTTP surface. Workers stop when ctx is cancelled.
func NewServer(ctx context.Context, cfg config.AppConfig) *http.Server {
	// --- DB connection ---
	dbpool, err := config.ConnectDB(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// --- Init repos ---
	notifRepo := repository.NewRepository(dbpool)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	// --- Delivery queue ---
	q := queue.NewRedisQueue(rdb, cfg.QueuePrefix)

	// --- Auth middleware ---
	auth := middleware.NewAuthMiddleware(jwtutil.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer))

	// --- WS manager ---
	wsManager := ws.NewManager()
	go wsManager.Heartbeat(30 * time.Second)

	// --- Templates ---
	templates := buildTemplateRegistry()

	// --- Usecases ---
	uc := usecase.NewNotificationUsecase(notifRepo, q, wsManager)

	// --- Workers ---
	smtp := mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	for i := 0; i < cfg.WorkerCount; i++ {
		w := &queue.Worker{
			ID:        "w" + strconv.Itoa(i),
			Queue:     q,
			Repo:      notifRepo,
			Mailer:    smtp,
			Templates: templates,
		}
		go w.Run(ctx)
	}

	// --- Handlers ---
	restHandler := hrest.NewNotificationHandler(uc)
	dlqHandler := hrest.NewDLQHandler(q)
	wsHandler := wshandler.NewWSHandler(wsManager, uc)

	// --- HTTP routes ---
	r := chi.NewRouter()
	r = router.SetupRoutes(r, restHandler, dlqHandler, wsHandler, auth, rdb).(*chi.Mux)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
}

// buildTemplateRegistry seeds the email templates and their rollout
// policies. v2 of the new-message template is canarying at 10%.
func buildTemplateRegistry() *template.Registry {
	reg := template.NewRegistry()

	reg.Register("new_message", template.Version{
		Version:      "v1",
		Subject:      "{{title}}",
		HTML:         "<h2>{{title}}</h2><p>{{message}}</p>",
		Text:         "{{title}}\n\n{{message}}",
		RequiredVars: []string{"title", "message"},
	})
	reg.Register("new_message", template.Version{
		Version:      "v2",
		Subject:      "You have a new message",
		HTML:         "<h2>{{title}}</h2><p>{{message}}</p><p>Open the app to reply anonymously.</p>",
		Text:         "{{title}}\n\n{{message}}\n\nOpen the app to reply anonymously.",
		RequiredVars: []string{"title", "message"},
	})
	reg.SetPolicy("new_message", template.RolloutPolicy{
		ActiveVersion: "v1",
		CanaryVersion: "v2",
		CanaryPercent: 10,
	})

	reg.Register("message_batch", template.Version{
		Version:      "v1",
		Subject:      "{{title}}",
		HTML:         "<h2>{{title}}</h2><p>You have {{count}} unread messages waiting.</p>",
		Text:         "{{title}}\n\nYou have {{count}} unread messages waiting.",
		RequiredVars: []string{"title", "count"},
	})

	reg.Register("system", template.Version{
		Version:      "v1",
		Subject:      "{{title}}",
		HTML:         "<h2>{{title}}</h2><p>{{message}}</p>",
		Text:         "{{title}}\n\n{{message}}",
		RequiredVars: []string{"title", "message"},
	})

	return reg
}
