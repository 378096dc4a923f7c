package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsandwich/backoffice/books"
	"github.com/mrsandwich/backoffice/config"
	"github.com/mrsandwich/backoffice/coupon"
	"github.com/mrsandwich/backoffice/customer"
	"github.com/mrsandwich/backoffice/ledger"
	"github.com/mrsandwich/backoffice/notify"
	"github.com/mrsandwich/backoffice/order"
	"github.com/mrsandwich/backoffice/store/memstore"
	"github.com/mrsandwich/backoffice/table"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	st := memstore.New(table.Default("test-table"))
	customers := customer.New(st)
	h := NewHandler(
		customers,
		ledger.New(st, customers),
		coupon.New(st),
		order.New(st),
		books.New(st, "mr-sandwich"),
		notify.NewClient("", ""),
		config.AdminConfig{Username: "admin", Password: "hunter2"},
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLogin(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, "POST", "/login", map[string]string{"username": "admin", "password": "hunter2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "POST", "/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, mux, "POST", "/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustomerEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, "POST", "/customer", map[string]string{
		"name": "Asha", "phoneNumber": "0915551234", "dob": "1990-04-12",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "5551234", decodeBody(t, rec)["customerId"])

	rec = do(t, mux, "GET", "/customer?id=5551234", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Asha", decodeBody(t, rec)["name"])

	rec = do(t, mux, "GET", "/customer?id=0000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, "GET", "/customer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, "GET", "/customers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRewardEndpoints(t *testing.T) {
	mux := newTestMux(t)
	rec := do(t, mux, "POST", "/customer", map[string]string{"name": "Asha", "phoneNumber": "0915551234"})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("create and list", func(t *testing.T) {
		rec := do(t, mux, "POST", "/rewards", map[string]any{
			"customerId": "5551234", "rewardType": "loyalty", "points": 50,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.NotZero(t, decodeBody(t, rec)["entryId"])

		rec = do(t, mux, "GET", "/rewards?id=5551234", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(50), body["totalPoints"])
	})

	t.Run("duplicate type conflicts", func(t *testing.T) {
		rec := do(t, mux, "POST", "/rewards", map[string]any{
			"customerId": "5551234", "rewardType": "loyalty", "points": 10,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("redeem", func(t *testing.T) {
		rec := do(t, mux, "POST", "/rewards/redeem", map[string]any{
			"customerId": "5551234", "points": 20,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(20), decodeBody(t, rec)["redeemed"])
	})

	t.Run("insufficient points is a 400 with balances", func(t *testing.T) {
		rec := do(t, mux, "POST", "/rewards/redeem", map[string]any{
			"customerId": "5551234", "points": 1000,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(30), body["available"])
		assert.Equal(t, float64(1000), body["requested"])
	})

	t.Run("redeem for unknown customer is 404", func(t *testing.T) {
		rec := do(t, mux, "POST", "/rewards/redeem", map[string]any{
			"customerId": "0000000", "points": 5,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid entry id in path", func(t *testing.T) {
		rec := do(t, mux, "PUT", "/rewards/notanumber", map[string]any{"customerId": "5551234"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCouponEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, "POST", "/coupons", map[string]string{"code": "SAVE10", "title": "Ten off"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, "POST", "/coupons", map[string]string{"code": "SAVE10", "title": "Again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, mux, "PUT", "/coupons?code=SAVE10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["usedCount"])

	rec = do(t, mux, "GET", "/coupons?code=SAVE10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "GET", "/coupons", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "DELETE", "/coupons?code=SAVE10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "GET", "/coupons?code=SAVE10", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, "POST", "/orders", map[string]any{
		"tableId": "T4",
		"items": []map[string]any{
			{"name": "club sandwich", "unitPrice": 80, "quantity": 2},
		},
		"paymentDetails": map[string]any{"method": "upi", "amount": 160},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decodeBody(t, rec)["orderId"].(string)

	rec = do(t, mux, "GET", "/orders/"+orderID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "GET", "/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "POST", "/orders", map[string]any{"tableId": "T4"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookkeepingEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, "POST", "/expense", map[string]any{
		"category": "produce", "amount": 120.5, "date": "2025-06-01", "paymentMethod": "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	expenseID := decodeBody(t, rec)["expenseId"].(string)

	rec = do(t, mux, "POST", "/sale", map[string]any{
		"itemName": "club sandwich", "category": "food", "quantity": 2,
		"unitPrice": 80, "date": "2025-06-01", "paymentMethod": "upi",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, "GET", "/expense?date=2025-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = do(t, mux, "PUT", "/expense", map[string]any{
		"expenseId": expenseID, "originalDate": "2025-06-01",
		"category": "produce", "amount": 99.0, "date": "2025-06-01", "paymentMethod": "cash",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "GET", "/expense/summary?startDate=2025-06-01&endDate=2025-06-30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(99), body["totalExpenses"])
	assert.Equal(t, float64(160), body["totalSales"])

	rec = do(t, mux, "GET", "/expense/summary", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, "DELETE", "/expense?expenseId="+expenseID+"&date=2025-06-01", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "GET", "/sale?startDate=2025-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "half-open range")
}

func TestDashboard(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, "POST", "/customer", map[string]string{"name": "Asha", "phoneNumber": "0915551234"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, mux, "POST", "/rewards", map[string]any{
		"customerId": "5551234", "rewardType": "loyalty", "points": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, "GET", "/dashboard?id=5551234", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(30), body["totalPoints"])
	assert.NotNil(t, body["customer"])

	rec = do(t, mux, "GET", "/dashboard?id=0000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWhatsAppEndpoint_UnknownTemplate(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, "POST", "/customer", map[string]string{"name": "Asha", "phoneNumber": "0915551234"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, "POST", "/whatsapp?id=5551234", map[string]string{"templateName": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
