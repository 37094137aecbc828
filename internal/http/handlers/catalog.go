package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"zaiqa-order-service/internal/storage"
	"zaiqa-order-service/internal/utils"
	"zaiqa-order-service/pkg/response"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

type productView struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Price        float64 `json:"price"`
	Category     *string `json:"category"`
	ImageURL     *string `json:"imageUrl"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	IsAvailable  bool    `json:"isAvailable"`
}

type dealView struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Price       float64    `json:"price"`
	ImageURL    *string    `json:"imageUrl"`
	IsActive    bool       `json:"isActive"`
	ValidFrom   *time.Time `json:"validFrom"`
	ValidUntil  *time.Time `json:"validUntil"`
}

// PublicGetMenu serves the storefront: available products grouped with
// the currently running deals.
func (h *Handler) PublicGetMenu(w http.ResponseWriter, r *http.Request) {
	products, err := h.loadProducts(r, true)
	if err != nil {
		h.Logger.Error("failed to load menu products", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load menu")
		return
	}

	deals, err := h.loadDeals(r, true)
	if err != nil {
		h.Logger.Error("failed to load menu deals", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load menu")
		return
	}

	response.Success(w, map[string]any{
		"restaurant": map[string]any{
			"name":     h.Config.RestaurantName,
			"currency": h.Config.Currency,
			"timezone": h.Config.RestaurantTimezone,
		},
		"products": products,
		"deals":    deals,
	})
}

func (h *Handler) loadProducts(r *http.Request, availableOnly bool) ([]productView, error) {
	query := `
		select id, name, description, price, category, image_url, thumbnail_url, is_available
		from products
	`
	if availableOnly {
		query += ` where is_available = true`
	}
	query += ` order by category nulls last, name asc`

	rows, err := h.DB.Query(r.Context(), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]productView, 0)
	for rows.Next() {
		var (
			product     productView
			description pgtype.Text
			price       pgtype.Numeric
			category    pgtype.Text
			imageURL    pgtype.Text
			thumbURL    pgtype.Text
		)
		if err := rows.Scan(&product.ID, &product.Name, &description, &price, &category, &imageURL, &thumbURL, &product.IsAvailable); err != nil {
			return nil, err
		}
		product.Description = textPtr(description)
		product.Price = utils.NumericToFloat64(price)
		product.Category = textPtr(category)
		product.ImageURL = textPtr(imageURL)
		product.ThumbnailURL = textPtr(thumbURL)
		products = append(products, product)
	}
	return products, rows.Err()
}

func (h *Handler) loadDeals(r *http.Request, activeOnly bool) ([]dealView, error) {
	query := `
		select id, name, description, price, image_url, is_active, valid_from, valid_until
		from deals
	`
	if activeOnly {
		query += `
		where is_active = true
		  and (valid_from is null or valid_from <= now())
		  and (valid_until is null or valid_until >= now())`
	}
	query += ` order by name asc`

	rows, err := h.DB.Query(r.Context(), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := make([]dealView, 0)
	for rows.Next() {
		var (
			deal        dealView
			description pgtype.Text
			price       pgtype.Numeric
			imageURL    pgtype.Text
			validFrom   pgtype.Timestamptz
			validUntil  pgtype.Timestamptz
		)
		if err := rows.Scan(&deal.ID, &deal.Name, &description, &price, &imageURL, &deal.IsActive, &validFrom, &validUntil); err != nil {
			return nil, err
		}
		deal.Description = textPtr(description)
		deal.Price = utils.NumericToFloat64(price)
		deal.ImageURL = textPtr(imageURL)
		deal.ValidFrom = timePtr(validFrom)
		deal.ValidUntil = timePtr(validUntil)
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.loadProducts(r, false)
	if err != nil {
		h.Logger.Error("failed to list products", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load products")
		return
	}
	response.Success(w, products)
}

type productRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       float64 `json:"price"`
	Category    *string `json:"category"`
	IsAvailable *bool   `json:"isAvailable"`
}

func (req *productRequest) validate() (string, string) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "INVALID_PRODUCT_NAME", "Product name is required"
	}
	if req.Price < 0 {
		return "INVALID_PRICE", "Price cannot be negative"
	}
	return "", ""
}

func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	product := productView{
		Name:        req.Name,
		Description: req.Description,
		Price:       round2(req.Price),
		Category:    req.Category,
		IsAvailable: available,
	}

	err := h.DB.QueryRow(r.Context(), `
		insert into products (name, description, price, category, is_available)
		values ($1, $2, $3, $4, $5)
		returning id
	`, product.Name, product.Description, product.Price, product.Category, available).Scan(&product.ID)
	if err != nil {
		h.Logger.Error("failed to create product", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create product")
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": product})
}

func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := readPathInt64(r, "productId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_PRODUCT_ID", "Product id must be numeric")
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	tag, err := h.DB.Exec(r.Context(), `
		update products
		set name = $1, description = $2, price = $3, category = $4,
		    is_available = $5, updated_at = now()
		where id = $6
	`, req.Name, req.Description, round2(req.Price), req.Category, available, productID)
	if err != nil {
		h.Logger.Error("failed to update product", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}

	response.Success(w, map[string]any{"updated": true})
}

func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := readPathInt64(r, "productId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_PRODUCT_ID", "Product id must be numeric")
		return
	}

	// Products referenced by order history are hidden, not removed.
	tag, err := h.DB.Exec(r.Context(), `
		update products set is_available = false, updated_at = now() where id = $1
	`, productID)
	if err != nil {
		h.Logger.Error("failed to hide product", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete product")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}

	response.Success(w, map[string]any{"deleted": true})
}

// AdminUploadProductImage normalizes the upload into a display image and
// a square thumbnail, both JPEG, and saves their URLs on the product.
func (h *Handler) AdminUploadProductImage(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		response.Error(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Image storage is not configured")
		return
	}

	productID, err := readPathInt64(r, "productId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_PRODUCT_ID", "Product id must be numeric")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxAttachmentBytes)
	if err := r.ParseMultipartForm(h.Config.MaxAttachmentBytes); err != nil {
		response.Error(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "Image exceeds the size limit")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "MISSING_FILE", "Multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.Logger.Error("failed to read product image", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read image")
		return
	}

	if !utils.ValidateImageContentType(utils.DetectContentType(data)) {
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_IMAGE", "Only JPEG, PNG, WebP and HEIC images are accepted")
		return
	}

	display, _, err := utils.EncodeJpegFitInside(data, 1600, 85)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_IMAGE", "Could not decode the image")
		return
	}
	thumb, _, err := utils.EncodeJpegCoverSquare(data, 400, 80)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_IMAGE", "Could not decode the image")
		return
	}

	var oldImageURL, oldThumbURL *string
	if err := h.DB.QueryRow(r.Context(), `
		select image_url, thumbnail_url from products where id = $1
	`, productID).Scan(&oldImageURL, &oldThumbURL); err != nil {
		response.Error(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}

	imageID := uuid.NewString()

	imageURL, err := h.Store.PutObject(r.Context(), storage.ProductImageKey(productID, imageID), display, "image/jpeg", storage.CacheImmutable)
	if err != nil {
		h.Logger.Error("failed to upload product image", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to store image")
		return
	}
	thumbURL, err := h.Store.PutObject(r.Context(), storage.ProductThumbKey(productID, imageID), thumb, "image/jpeg", storage.CacheImmutable)
	if err != nil {
		h.Logger.Error("failed to upload product thumbnail", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to store image")
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
		update products set image_url = $1, thumbnail_url = $2, updated_at = now() where id = $3
	`, imageURL, thumbURL, productID)
	if err != nil {
		h.Logger.Error("failed to save product image urls", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save image")
		return
	}

	// The replaced photo is unreachable once the row points elsewhere.
	for _, old := range []*string{oldImageURL, oldThumbURL} {
		if old != nil {
			if err := h.Store.DeleteURL(r.Context(), *old); err != nil {
				h.Logger.Warn("failed to delete replaced product image", zap.String("url", *old), zap.Error(err))
			}
		}
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}

	response.Success(w, map[string]any{"imageUrl": imageURL, "thumbnailUrl": thumbURL})
}

func (h *Handler) AdminListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.loadDeals(r, false)
	if err != nil {
		h.Logger.Error("failed to list deals", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load deals")
		return
	}
	response.Success(w, deals)
}

type dealRequest struct {
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Price       float64    `json:"price"`
	IsActive    *bool      `json:"isActive"`
	ValidFrom   *time.Time `json:"validFrom"`
	ValidUntil  *time.Time `json:"validUntil"`
}

func (req *dealRequest) validate() (string, string) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "INVALID_DEAL_NAME", "Deal name is required"
	}
	if req.Price < 0 {
		return "INVALID_PRICE", "Price cannot be negative"
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && req.ValidUntil.Before(*req.ValidFrom) {
		return "INVALID_VALIDITY", "valid_until must be after valid_from"
	}
	return "", ""
}

func (h *Handler) AdminCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req dealRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	deal := dealView{
		Name:        req.Name,
		Description: req.Description,
		Price:       round2(req.Price),
		IsActive:    active,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
	}

	err := h.DB.QueryRow(r.Context(), `
		insert into deals (name, description, price, is_active, valid_from, valid_until)
		values ($1, $2, $3, $4, $5, $6)
		returning id
	`, deal.Name, deal.Description, deal.Price, active, req.ValidFrom, req.ValidUntil).Scan(&deal.ID)
	if err != nil {
		h.Logger.Error("failed to create deal", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create deal")
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": deal})
}

func (h *Handler) AdminUpdateDeal(w http.ResponseWriter, r *http.Request) {
	dealID, err := readPathInt64(r, "dealId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_DEAL_ID", "Deal id must be numeric")
		return
	}

	var req dealRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if code, msg := req.validate(); code != "" {
		response.Error(w, http.StatusBadRequest, code, msg)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	tag, err := h.DB.Exec(r.Context(), `
		update deals
		set name = $1, description = $2, price = $3, is_active = $4,
		    valid_from = $5, valid_until = $6, updated_at = now()
		where id = $7
	`, req.Name, req.Description, round2(req.Price), active, req.ValidFrom, req.ValidUntil, dealID)
	if err != nil {
		h.Logger.Error("failed to update deal", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update deal")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "DEAL_NOT_FOUND", "Deal not found")
		return
	}

	response.Success(w, map[string]any{"updated": true})
}

func (h *Handler) AdminDeleteDeal(w http.ResponseWriter, r *http.Request) {
	dealID, err := readPathInt64(r, "dealId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_DEAL_ID", "Deal id must be numeric")
		return
	}

	tag, err := h.DB.Exec(r.Context(), `
		update deals set is_active = false, updated_at = now() where id = $1
	`, dealID)
	if err != nil {
		h.Logger.Error("failed to deactivate deal", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete deal")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "DEAL_NOT_FOUND", "Deal not found")
		return
	}

	response.Success(w, map[string]any{"deleted": true})
}
