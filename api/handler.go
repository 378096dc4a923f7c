// Package api exposes the back-office services over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mrsandwich/backoffice/apperr"
	"github.com/mrsandwich/backoffice/books"
	"github.com/mrsandwich/backoffice/config"
	"github.com/mrsandwich/backoffice/coupon"
	"github.com/mrsandwich/backoffice/customer"
	"github.com/mrsandwich/backoffice/entity"
	"github.com/mrsandwich/backoffice/ledger"
	"github.com/mrsandwich/backoffice/notify"
	"github.com/mrsandwich/backoffice/order"
)

// Handler wires the service layer to HTTP routes.
type Handler struct {
	customers *customer.Service
	rewards   *ledger.Engine
	coupons   *coupon.Service
	orders    *order.Service
	books     *books.Service
	notifier  *notify.Client
	admin     config.AdminConfig
}

func NewHandler(
	customers *customer.Service,
	rewards *ledger.Engine,
	coupons *coupon.Service,
	orders *order.Service,
	booksSvc *books.Service,
	notifier *notify.Client,
	admin config.AdminConfig,
) *Handler {
	return &Handler{
		customers: customers,
		rewards:   rewards,
		coupons:   coupons,
		orders:    orders,
		books:     booksSvc,
		notifier:  notifier,
		admin:     admin,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", h.login)

	mux.HandleFunc("POST /customer", h.createCustomer)
	mux.HandleFunc("GET /customer", h.getCustomer)
	mux.HandleFunc("GET /customers", h.listCustomers)

	mux.HandleFunc("POST /rewards", h.createReward)
	mux.HandleFunc("GET /rewards", h.listRewards)
	mux.HandleFunc("GET /rewards/all", h.listAllRewards)
	mux.HandleFunc("POST /rewards/redeem", h.redeemPoints)
	mux.HandleFunc("PUT /rewards/{entryId}", h.updateReward)
	mux.HandleFunc("DELETE /rewards/{entryId}", h.deleteReward)

	mux.HandleFunc("POST /coupons", h.createCoupon)
	mux.HandleFunc("PUT /coupons", h.incrementCouponUsage)
	mux.HandleFunc("GET /coupons", h.getCoupons)
	mux.HandleFunc("DELETE /coupons", h.deleteCoupon)

	mux.HandleFunc("POST /orders", h.placeOrder)
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/{orderId}", h.getOrder)

	mux.HandleFunc("POST /expense", h.createExpense)
	mux.HandleFunc("GET /expense", h.listExpenses)
	mux.HandleFunc("PUT /expense", h.updateExpense)
	mux.HandleFunc("DELETE /expense", h.deleteExpense)
	mux.HandleFunc("GET /expense/summary", h.summary)

	mux.HandleFunc("POST /sale", h.createSale)
	mux.HandleFunc("GET /sale", h.listSales)
	mux.HandleFunc("PUT /sale", h.updateSale)
	mux.HandleFunc("DELETE /sale", h.deleteSale)
	mux.HandleFunc("GET /sale/summary", h.summary)

	mux.HandleFunc("GET /dashboard", h.dashboard)

	mux.HandleFunc("POST /whatsapp", h.sendWhatsApp)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing username or password")
		return
	}
	if req.Username != h.admin.Username || req.Password != h.admin.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phoneNumber"`
		DateOfBirth string `json:"dob"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := h.customers.Create(r.Context(), req.Name, req.PhoneNumber, req.DateOfBirth)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customerId": id})
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}
	c, err := h.customers.GetCustomer(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (h *Handler) createReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customerId"`
		RewardType string `json:"rewardType"`
		Points     int64  `json:"points"`
		Period     string `json:"period"`
	}
	if !decode(w, r, &req) {
		return
	}
	entryID, err := h.rewards.CreateReward(r.Context(), req.CustomerID, req.RewardType, req.Points, req.Period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entryId": entryID})
}

func (h *Handler) listRewards(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}
	entries, err := h.rewards.ListRewards(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rewards": entries, "totalPoints": totalPoints(entries)})
}

func (h *Handler) listAllRewards(w http.ResponseWriter, r *http.Request) {
	entries, err := h.rewards.ListAllRewards(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rewards": entries})
}

func (h *Handler) redeemPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customerId"`
		Points     int64  `json:"points"`
	}
	if !decode(w, r, &req) {
		return
	}
	redeemed, err := h.rewards.RedeemPoints(r.Context(), req.CustomerID, req.Points)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"redeemed": redeemed})
}

func (h *Handler) updateReward(w http.ResponseWriter, r *http.Request) {
	entryID, ok := entryIDPathValue(w, r)
	if !ok {
		return
	}
	var req struct {
		CustomerID string `json:"customerId"`
		RewardType string `json:"rewardType"`
		Points     int64  `json:"points"`
		Period     string `json:"period"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.rewards.UpdateReward(r.Context(), req.CustomerID, entryID, req.Points, req.RewardType, req.Period); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entryId": entryID})
}

func (h *Handler) deleteReward(w http.ResponseWriter, r *http.Request) {
	entryID, ok := entryIDPathValue(w, r)
	if !ok {
		return
	}
	customerID := r.URL.Query().Get("id")
	rewardType := r.URL.Query().Get("rewardType")
	if err := h.rewards.DeleteReward(r.Context(), customerID, entryID, rewardType); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entryId": entryID})
}

func entryIDPathValue(w http.ResponseWriter, r *http.Request) (int64, bool) {
	entryID, err := strconv.ParseInt(r.PathValue("entryId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return 0, false
	}
	return entryID, true
}

func totalPoints(entries []entity.RewardEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Points
	}
	return total
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string `json:"code"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := h.coupons.Create(r.Context(), req.Code, req.Title, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) incrementCouponUsage(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing coupon code")
		return
	}
	count, err := h.coupons.IncrementUsage(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "usedCount": count})
}

func (h *Handler) getCoupons(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("code"); code != "" {
		c, err := h.coupons.Get(r.Context(), code)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupons": coupons})
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing coupon code")
		return
	}
	if err := h.coupons.Delete(r.Context(), code); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableID        string                `json:"tableId"`
		Items          []entity.OrderItem    `json:"items"`
		PaymentDetails entity.PaymentDetails `json:"paymentDetails"`
	}
	if !decode(w, r, &req) {
		return
	}
	o, err := h.orders.Place(r.Context(), req.TableID, req.Items, req.PaymentDetails)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	header, lines, err := h.orders.Get(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": header, "lines": lines})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.books.CreateExpense(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	entries, err := h.books.ListExpenses(r.Context(), filterFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": entries, "count": len(entries)})
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpenseID    string `json:"expenseId"`
		OriginalDate string `json:"originalDate"`
		expenseRequest
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ExpenseID == "" || req.OriginalDate == "" {
		writeError(w, http.StatusBadRequest, "missing expenseId or originalDate")
		return
	}
	e, err := h.books.UpdateExpense(r.Context(), req.OriginalDate, req.ExpenseID, req.input())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("expenseId")
	date := r.URL.Query().Get("date")
	if id == "" || date == "" {
		writeError(w, http.StatusBadRequest, "missing expenseId or date")
		return
	}
	if err := h.books.DeleteExpense(r.Context(), date, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenseId": id})
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.books.CreateSale(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	entries, err := h.books.ListSales(r.Context(), filterFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": entries, "count": len(entries)})
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SaleID       string `json:"saleId"`
		OriginalDate string `json:"originalDate"`
		saleRequest
	}
	if !decode(w, r, &req) {
		return
	}
	if req.SaleID == "" || req.OriginalDate == "" {
		writeError(w, http.StatusBadRequest, "missing saleId or originalDate")
		return
	}
	e, err := h.books.UpdateSale(r.Context(), req.OriginalDate, req.SaleID, req.input())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("saleId")
	date := r.URL.Query().Get("date")
	if id == "" || date == "" {
		writeError(w, http.StatusBadRequest, "missing saleId or date")
		return
	}
	if err := h.books.DeleteSale(r.Context(), date, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saleId": id})
}

// summary serves both /expense/summary and /sale/summary; the report
// always covers both sides of the books.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("startDate")
	end := r.URL.Query().Get("endDate")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "missing startDate or endDate")
		return
	}
	sum, err := h.books.Summarize(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}
	c, err := h.customers.GetCustomer(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	entries, err := h.rewards.ListRewards(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer":    c,
		"rewards":     entries,
		"totalPoints": totalPoints(entries),
	})
}

func (h *Handler) sendWhatsApp(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("id")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}
	var req struct {
		TemplateName string `json:"templateName"`
		PromoCode    string `json:"promoCode"`
		MenuItem     string `json:"menuItem"`
		Occasion     string `json:"occasion"`
		RewardPeriod string `json:"rewardPeriod"`
		TableID      string `json:"tableId"`
		OrderTotal   string `json:"orderTotal"`
		Items        string `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}

	c, err := h.customers.GetCustomer(r.Context(), customerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch req.TemplateName {
	case notify.TemplatePromoCode:
		err = h.notifier.SendPromoCode(r.Context(), c.PhoneNumber, c.Name, req.PromoCode)
	case notify.TemplateNewMenu:
		err = h.notifier.SendNewMenuAlert(r.Context(), c.PhoneNumber, c.Name, req.MenuItem)
	case notify.TemplateExclusive:
		err = h.notifier.SendExclusiveOffer(r.Context(), c.PhoneNumber, c.Name, req.Occasion)
	case notify.TemplateRewardsUpdate:
		entries, lerr := h.rewards.ListRewards(r.Context(), customerID)
		if lerr != nil {
			writeServiceError(w, lerr)
			return
		}
		err = h.notifier.SendRewardsSummary(r.Context(), c.PhoneNumber, c.Name, totalPoints(entries), req.RewardPeriod)
	case notify.TemplateNewOrder:
		err = h.notifier.SendNewOrder(r.Context(), c.PhoneNumber, req.TableID, req.OrderTotal, req.Items)
	case notify.TemplateOrderUpdate:
		err = h.notifier.SendOrderUpdate(r.Context(), c.PhoneNumber, req.TableID, req.OrderTotal, req.Items)
	default:
		writeError(w, http.StatusBadRequest, "unknown template: "+req.TemplateName)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "template": req.TemplateName})
}

type expenseRequest struct {
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date"`
	PaymentMethod string  `json:"paymentMethod"`
	Vendor        string  `json:"vendor"`
	Notes         string  `json:"notes"`
}

func (r expenseRequest) input() books.ExpenseInput {
	return books.ExpenseInput{
		Category:      r.Category,
		Description:   r.Description,
		Amount:        r.Amount,
		Date:          r.Date,
		PaymentMethod: r.PaymentMethod,
		Vendor:        r.Vendor,
		Notes:         r.Notes,
	}
}

type saleRequest struct {
	ItemName      string  `json:"itemName"`
	Category      string  `json:"category"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unitPrice"`
	Date          string  `json:"date"`
	PaymentMethod string  `json:"paymentMethod"`
	CustomerName  string  `json:"customerName"`
	Notes         string  `json:"notes"`
}

func (r saleRequest) input() books.SaleInput {
	return books.SaleInput{
		ItemName:      r.ItemName,
		Category:      r.Category,
		Quantity:      r.Quantity,
		UnitPrice:     r.UnitPrice,
		Date:          r.Date,
		PaymentMethod: r.PaymentMethod,
		CustomerName:  r.CustomerName,
		Notes:         r.Notes,
	}
}

func filterFromQuery(r *http.Request) books.Filter {
	q := r.URL.Query()
	return books.Filter{
		Date:      q.Get("date"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Category:  q.Get("category"),
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var insufficient *apperr.InsufficientPointsError
	var partial *apperr.PartialRedemptionError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     err.Error(),
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
	case errors.As(err, &partial):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
