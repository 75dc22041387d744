package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Apsistec/fitos-app-sub002/internal/config"
	"github.com/Apsistec/fitos-app-sub002/internal/handlers"
	"github.com/Apsistec/fitos-app-sub002/internal/middleware"
	"github.com/Apsistec/fitos-app-sub002/internal/repository"
	"github.com/Apsistec/fitos-app-sub002/internal/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	offeringRepo := repository.NewOfferingRepository(db)
	grantRepo := repository.NewGrantRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)

	gateway := services.NewPaymentAPIClient(cfg.PaymentAPIURL, cfg.PaymentAPISecret, cfg.PaymentTimeout)

	catalogService := services.NewCatalogService(offeringRepo)
	grantService := services.NewGrantService(grantRepo, offeringRepo)
	checkoutService := services.NewCheckoutService(db, appointmentRepo, receiptRepo, grantService, gateway)
	contractService := services.NewContractService(offeringRepo, grantRepo, gateway)

	catalogHandler := handlers.NewCatalogHandler(catalogService)
	grantHandler := handlers.NewGrantHandler(grantService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	contractHandler := handlers.NewContractHandler(contractService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Renewal notices come from the billing provider, not a logged-in user;
	// the provider authenticates with the shared API secret.
	api.Post("/v1/billing/renewal", middleware.WebhookAuth(cfg.PaymentAPISecret), contractHandler.Renewal)

	protected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	offerings := protected.Group("/offerings")
	offerings.Post("", catalogHandler.CreateOffering)
	offerings.Get("", catalogHandler.ListOfferings)
	offerings.Get("/:id", catalogHandler.GetOffering)
	offerings.Put("/:id", catalogHandler.UpdateOffering)
	offerings.Post("/:id/archive", catalogHandler.ArchiveOffering)
	offerings.Post("/:id/restore", catalogHandler.RestoreOffering)

	grants := protected.Group("/grants")
	grants.Post("/sell", grantHandler.SellOffering)
	grants.Post("/:id/debit", grantHandler.Debit)
	grants.Post("/:id/deactivate", grantHandler.DeactivateGrant)

	protected.Get("/clients/:id/grants", grantHandler.ListClientGrants)

	protected.Post("/checkout", checkoutHandler.Checkout)
	protected.Get("/appointments/:id/receipt", checkoutHandler.GetReceipt)

	protected.Post("/contracts/enroll", contractHandler.Enroll)
}
