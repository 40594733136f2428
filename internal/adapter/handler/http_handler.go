package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
	"github.com/leonardofgirotto/storefront/internal/core/service"
	"github.com/leonardofgirotto/storefront/internal/port"
	"github.com/leonardofgirotto/storefront/pkg/metrics"
)

// IdempotencyHeader carries the client-chosen key deduping retried order
// submissions.
const IdempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	orders   *service.OrderService
	products *service.ProductService
	users    *service.UserService
	metrics  *metrics.ServerMetrics
}

func NewHTTPHandler(orders *service.OrderService, products *service.ProductService, users *service.UserService, m *metrics.ServerMetrics) *HTTPHandler {
	return &HTTPHandler{orders: orders, products: products, users: users, metrics: m}
}

// Routes builds the service mux. Handlers are instrumented when metrics
// are wired.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	register := func(pattern, name string, fn http.HandlerFunc) {
		if h.metrics != nil {
			fn = h.metrics.Instrument(name, fn)
		}
		mux.HandleFunc(pattern, fn)
	}

	register("POST /api/orders", "create_order", h.CreateOrder)
	register("GET /api/orders", "list_orders", h.ListOrders)
	register("GET /api/orders/{id}", "get_order", h.GetOrder)
	register("PATCH /api/orders/{id}/status", "update_order_status", h.UpdateOrderStatus)
	register("POST /api/orders/{id}/cancel", "cancel_order", h.CancelOrder)

	register("POST /api/products", "create_product", h.CreateProduct)
	register("GET /api/products", "list_products", h.ListProducts)
	register("GET /api/products/{id}", "get_product", h.GetProduct)
	register("DELETE /api/products/{id}", "delete_product", h.DeleteProduct)

	register("POST /api/users", "register_user", h.RegisterUser)
	register("GET /api/users", "list_users", h.ListUsers)
	register("GET /api/users/{id}", "get_user", h.GetUser)
	register("PUT /api/users/{id}", "update_user", h.UpdateUser)
	register("DELETE /api/users/{id}", "deactivate_user", h.DeactivateUser)

	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Payloads

type addressPayload struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
	}
}

func addressFromDomain(a domain.Address) addressPayload {
	return addressPayload{
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
	}
}

type lineItemPayload struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type orderResponse struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Items           []lineItemPayload `json:"items"`
	TotalValue      decimal.Decimal   `json:"total_value"`
	Status          string            `json:"status"`
	DeliveryAddress addressPayload    `json:"delivery_address"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func orderToResponse(o domain.Order) orderResponse {
	items := make([]lineItemPayload, 0, len(o.Items))
	for _, li := range o.Items {
		items = append(items, lineItemPayload{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
		})
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		TotalValue:      o.TotalValue,
		Status:          string(o.Status),
		DeliveryAddress: addressFromDomain(o.DeliveryAddress),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type userSummaryPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type productSummaryPayload struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type orderLineViewPayload struct {
	lineItemPayload
	Product *productSummaryPayload `json:"product,omitempty"`
}

type orderViewResponse struct {
	orderResponse
	User  *userSummaryPayload    `json:"user,omitempty"`
	Lines []orderLineViewPayload `json:"lines"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

// Orders

type createOrderRequest struct {
	UserID          string `json:"user_id"`
	Items           []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	DeliveryAddress *addressPayload `json:"delivery_address,omitempty"`
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	in := service.CreateOrderInput{
		UserID:         req.UserID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.LineItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if req.DeliveryAddress != nil {
		addr := req.DeliveryAddress.toDomain()
		in.DeliveryAddress = &addr
	}

	order, err := h.orders.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.OrdersCreated.Inc()
	}
	writeJSON(w, http.StatusCreated, orderToResponse(*order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := port.OrderFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: domain.OrderStatus(r.URL.Query().Get("status")),
	}

	views, err := h.orders.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]orderViewResponse, 0, len(views))
	for _, v := range views {
		resp := orderViewResponse{orderResponse: orderToResponse(v.Order)}
		if v.User != nil {
			resp.User = &userSummaryPayload{ID: v.User.ID, Name: v.User.Name, Email: v.User.Email}
		}
		for _, line := range v.Items {
			lp := orderLineViewPayload{lineItemPayload: lineItemPayload{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			}}
			if line.Product != nil {
				lp.Product = &productSummaryPayload{ID: line.Product.ID, Name: line.Product.Name, Price: line.Product.Price}
			}
			resp.Lines = append(resp.Lines, lp)
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if order == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(*order))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	if order == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(*order))
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if order == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	if h.metrics != nil {
		h.metrics.OrdersCancelled.Inc()
	}
	writeJSON(w, http.StatusOK, orderToResponse(*order))
}

// Products

type productRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type productResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func productToResponse(p domain.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  p.Quantity,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	p, err := h.products.Create(r.Context(), service.CreateProductInput{
		Name:     req.Name,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, productToResponse(*p))
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productToResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		return
	}
	writeJSON(w, http.StatusOK, productToResponse(*p))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		return
	}
	writeJSON(w, http.StatusOK, productToResponse(*p))
}

// Users

type userRequest struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Password string         `json:"password,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Address  addressPayload `json:"address"`
}

type userResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Address   addressPayload `json:"address"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func userToResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Address:   addressFromDomain(u.Address),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *HTTPHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	u, err := h.users.Register(r.Context(), service.RegisterUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Address:  req.Address.toDomain(),
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userToResponse(*u))
}

func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"
	users, err := h.users.List(r.Context(), onlyActive)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userToResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(*u))
}

func (h *HTTPHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	u, err := h.users.Update(r.Context(), r.PathValue("id"), service.UpdateUserInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address.toDomain(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(*u))
}

func (h *HTTPHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Deactivate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(*u))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the error taxonomy onto HTTP statuses: caller-input
// problems become 4xx, anything unclassified is a persistence failure and
// surfaces as an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation   *domain.ValidationError
		badStatus    *domain.InvalidStatusError
		notFound     *domain.ReferenceNotFoundError
		transition   *domain.InvalidTransitionError
		insufficient *domain.InsufficientStockError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Messages: validation.Messages})
	case errors.As(err, &badStatus):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: badStatus.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error()})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: transition.Error()})
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "duplicate request"})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusGone, errorResponse{Error: insufficient.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
