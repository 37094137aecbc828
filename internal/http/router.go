package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"zaiqa-order-service/internal/config"
	"zaiqa-order-service/internal/http/handlers"
	"zaiqa-order-service/internal/middleware"
	"zaiqa-order-service/internal/queue"
	"zaiqa-order-service/internal/storage"
	"zaiqa-order-service/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func NewRouter(db *pgxpool.Pool, logger *zap.Logger, cfg config.Config, queueClient *queue.Client, store *storage.ObjectStore, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Telemetry(logger))

	if cfg.Env == "development" || len(cfg.CorsAllowedOrigins) > 0 {
		options := cors.Options{
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"X-Requested-With",
				"Cache-Control",
				"Pragma",
			},
			AllowCredentials: true,
			MaxAge:           300,
		}

		if cfg.Env == "development" {
			options.AllowOriginFunc = func(_ *http.Request, origin string) bool {
				return true
			}
		} else {
			options.AllowedOrigins = cfg.CorsAllowedOrigins
		}

		r.Use(cors.Handler(options))
	}

	h := &handlers.Handler{DB: db, Logger: logger, Config: cfg, Queue: queueClient, Store: store}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/menu", h.PublicGetMenu)
		r.Post("/orders", h.PublicCreateOrder)
		r.Get("/orders/{orderNumber}", h.PublicGetOrder)
		r.Get("/orders/{orderNumber}/chat", h.PublicListChatMessages)
		r.Post("/orders/{orderNumber}/chat", h.PublicPostChatMessage)
		r.Post("/promo/validate", h.PublicValidatePromo)
		r.Post("/delivery/quote", h.PublicDeliveryQuote)
		r.Post("/push/subscribe", h.PublicSubscribePush)
		r.Delete("/push/subscribe", h.PublicUnsubscribePush)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(middleware.CustomerAuth(cfg.JWTSecret))
		r.Post("/{orderId}/rating", h.CustomerSubmitRating)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWTSecret))

		r.Get("/orders", h.AdminListOrders)
		r.Get("/orders/stats", h.AdminGetOrderStats)
		r.Post("/orders/pos", h.AdminCreatePOSOrder)
		r.Get("/orders/{orderId}", h.AdminGetOrder)
		r.Put("/orders/{orderId}/status", h.AdminUpdateOrderStatus)
		r.Put("/orders/{orderId}/invoice", h.AdminUpdateOrderInvoice)
		r.Get("/orders/{orderId}/payments", h.AdminListOrderPayments)
		r.Post("/orders/{orderId}/payments", h.AdminRecordOrderPayment)
		r.Put("/orders/{orderId}/rider", h.AdminAssignRider)
		r.Get("/orders/{orderId}/receipt", h.AdminGetOrderReceipt)
		r.Get("/orders/{orderId}/chat", h.AdminListChatMessages)
		r.Post("/orders/{orderId}/chat", h.AdminPostChatMessage)

		r.Get("/chats", h.AdminListChatThreads)
		r.Post("/chats/attachments", h.AdminUploadChatAttachment)

		r.Get("/riders", h.AdminListRiders)
		r.Post("/riders", h.AdminCreateRider)
		r.Put("/riders/{riderId}", h.AdminUpdateRider)
		r.Get("/riders/locations", h.AdminListRiderLocations)

		r.Get("/promo-codes", h.AdminListPromoCodes)
		r.Post("/promo-codes", h.AdminCreatePromoCode)
		r.Put("/promo-codes/{promoId}", h.AdminUpdatePromoCode)
		r.Delete("/promo-codes/{promoId}", h.AdminDeletePromoCode)

		r.Get("/delivery/zones", h.AdminListDeliveryZones)
		r.Post("/delivery/zones", h.AdminCreateDeliveryZone)
		r.Put("/delivery/zones/{zoneId}", h.AdminUpdateDeliveryZone)
		r.Delete("/delivery/zones/{zoneId}", h.AdminDeleteDeliveryZone)

		r.Get("/products", h.AdminListProducts)
		r.Post("/products", h.AdminCreateProduct)
		r.Put("/products/{productId}", h.AdminUpdateProduct)
		r.Delete("/products/{productId}", h.AdminDeleteProduct)
		r.Post("/products/{productId}/image", h.AdminUploadProductImage)

		r.Get("/deals", h.AdminListDeals)
		r.Post("/deals", h.AdminCreateDeal)
		r.Put("/deals/{dealId}", h.AdminUpdateDeal)
		r.Delete("/deals/{dealId}", h.AdminDeleteDeal)
	})

	r.Route("/api/rider", func(r chi.Router) {
		r.Post("/login", h.RiderLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RiderAuth(db))
			r.Post("/logout", h.RiderLogout)
			r.Get("/orders", h.RiderListOrders)
			r.Put("/orders/{orderId}/status", h.RiderUpdateOrderStatus)
			r.Get("/orders/{orderId}/chat", h.RiderListChatMessages)
			r.Post("/orders/{orderId}/chat", h.RiderPostChatMessage)
			r.Post("/location", h.RiderUpdateLocation)
		})
	})

	if wsServer != nil {
		r.Get("/ws/admin/orders", wsServer.AdminOrdersWS)
		r.Get("/ws/public/order", wsServer.PublicOrderWS)
	}

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
