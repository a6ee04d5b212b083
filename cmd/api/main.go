package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	common_api "go-erp/internal/common/api"
	"go-erp/internal/config"
	"go-erp/internal/database"
	"go-erp/internal/events"
	"go-erp/internal/features/approval"
	"go-erp/internal/features/audit"
	"go-erp/internal/features/engine"
	"go-erp/internal/features/expiry"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/notification"
	"go-erp/internal/features/role"
	"go-erp/internal/features/system"
	"go-erp/internal/features/user"
	"go-erp/internal/logger"
	"go-erp/internal/middleware"
	"go-erp/pkg/condition"
	"go-erp/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		},
	})

	app.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, log *zap.Logger) {
	log.Info("registering routes", zap.Int("count", len(routes)))
	for i, route := range routes {
		log.Debug("setting up route", zap.Int("index", i+1), zap.String("type", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				log.Info("http server listening", zap.String("addr", port))
				if err := app.Listen(port); err != nil {
					log.Fatal("server failed to start", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// Bootstrap seeds the role catalogue before the server accepts traffic. With
// SKIP_AUTH set it also makes sure the injected dev actor exists, so its
// decisions resolve to the admin role.
func Bootstrap(lc fx.Lifecycle, cfg *config.Config, roles role.RoleService, users user.UserService, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := roles.Bootstrap(ctx); err != nil {
				return fmt.Errorf("bootstrap roles: %w", err)
			}
			if !cfg.SkipAuth {
				return nil
			}

			_, err := users.CreateUser(ctx, &user.User{
				ID:       middleware.DevAdminID,
				Username: "dev-admin",
				Roles:    []string{"admin"},
			})
			if err != nil && !errors.Is(err, user.ErrUserExists) {
				return fmt.Errorf("create dev admin: %w", err)
			}
			log.Warn("SKIP_AUTH is enabled, every request acts as the dev admin")
			return nil
		},
	})
}

// SubscribeHandlers attaches the event consumers to the bus before it starts.
func SubscribeHandlers(bus *events.Bus, auditService audit.AuditService, notifications notification.NotificationService) {
	audit.Subscribe(bus, auditService)
	notification.Subscribe(bus, notifications)
}

// @title           ERP Approval Engine API
// @version         1.0
// @description     Role permissions, approval flows and multi-step approval requests.

// @host            localhost:8000
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,
			database.NewRedisClient,

			// Shared infrastructure
			condition.NewCache,
			role.NewRegistry,
			events.NewLifecycleBus,
			approval.NewLocker,
			notification.NewHub,

			// Initialize Repository
			role.NewRoleRepository,
			user.NewUserRepository,
			flow.NewFlowRepository,
			approval.NewRequestRepository,
			audit.NewAuditRepository,

			// Initialize Service
			role.NewRoleService,
			user.NewUserService,
			flow.NewFlowService,
			flow.NewMatcher,
			approval.NewApprovalService,
			engine.NewEngineService,
			audit.NewAuditService,
			notification.NewNotificationService,
			expiry.NewLifecycleExpiryService,

			// Interface bindings between features
			func(s user.UserService) role.RoleReferenceCounter { return s },
			func(r *role.Registry) flow.RoleLookup { return r },
			func(m *flow.Matcher) engine.FlowMatcher { return m },
			func(s user.UserService) engine.RoleDirectory { return s },
			func(b *events.Bus) engine.Emitter { return b },
			func(r user.UserRepository) audit.UserFinder { return r },
			func(s approval.ApprovalService) expiry.PendingLister { return s },
			func(s engine.EngineService) expiry.Canceller { return s },

			// Initialize Controller
			role.NewRoleController,
			user.NewUserController,
			flow.NewFlowController,
			engine.NewEngineController,
			audit.NewAuditController,
			notification.NewNotificationController,

			// Initialize API Routes
			AsRoute(system.NewHealthApi),
			AsRoute(role.NewRoleApi),
			AsRoute(user.NewUserApi),
			AsRoute(flow.NewFlowApi),
			AsRoute(engine.NewEngineApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(notification.NewNotificationApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },
			SubscribeHandlers,
			Bootstrap,
			func(*expiry.ExpiryService) {},

			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
		),
	)

	app.Run()
}
