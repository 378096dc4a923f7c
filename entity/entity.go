// Package entity holds the domain types and the codec between them and
// the store's generic (partition key, sort key, attribute map) shape.
// Pure mapping; no side effects.
package entity

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/mrsandwich/backoffice/store"
)

// recordType values discriminate entity kinds in full-table scans.
const (
	RecordTypeCustomer = "customer"
	RecordTypeReward   = "reward"
	RecordTypeCoupon   = "coupon"
	RecordTypeOrder    = "order"
	RecordTypeExpense  = "expense"
	RecordTypeSale     = "sale"
)

// RecordTypeAttr is the attribute scans filter on.
const RecordTypeAttr = "recordType"

type Customer struct {
	ID          string `dynamodbav:"customerId" json:"customerId"`
	Name        string `dynamodbav:"name" json:"name"`
	PhoneNumber string `dynamodbav:"phoneNumber" json:"phoneNumber"`
	DateOfBirth string `dynamodbav:"dob" json:"dob,omitempty"`
	RecordType  string `dynamodbav:"recordType" json:"-"`
	CreatedAt   string `dynamodbav:"createdAt" json:"createdAt"`
}

// RewardEntry is one unit of accrued loyalty points. The entry id is a
// millisecond epoch timestamp, which doubles as the creation-order key
// redemption consumes entries in. Name, phone and DOB are denormalized
// from the owning customer at creation time.
type RewardEntry struct {
	EntryID     int64  `dynamodbav:"entryId" json:"entryId"`
	CustomerID  string `dynamodbav:"customerId" json:"customerId"`
	RewardType  string `dynamodbav:"rewardType" json:"rewardType"`
	Points      int64  `dynamodbav:"points" json:"points"`
	Period      string `dynamodbav:"period,omitempty" json:"period,omitempty"`
	Name        string `dynamodbav:"name" json:"name"`
	PhoneNumber string `dynamodbav:"phoneNumber" json:"phoneNumber"`
	DateOfBirth string `dynamodbav:"dob" json:"dob,omitempty"`
	RecordType  string `dynamodbav:"recordType" json:"-"`
	CreatedAt   string `dynamodbav:"createdAt" json:"createdAt"`
}

type Coupon struct {
	Code        string `dynamodbav:"code" json:"code"`
	Title       string `dynamodbav:"title" json:"title"`
	Description string `dynamodbav:"description" json:"description"`
	UsedCount   int64  `dynamodbav:"usedCount" json:"usedCount"`
	RecordType  string `dynamodbav:"recordType" json:"-"`
	CreatedAt   string `dynamodbav:"createdAt" json:"createdAt"`
}

type OrderItem struct {
	Name      string  `dynamodbav:"name" json:"name"`
	UnitPrice float64 `dynamodbav:"unitPrice" json:"unitPrice"`
	Quantity  int64   `dynamodbav:"quantity" json:"quantity"`
}

type PaymentDetails struct {
	Method        string  `dynamodbav:"method" json:"method"`
	Amount        float64 `dynamodbav:"amount" json:"amount"`
	TransactionID string  `dynamodbav:"transactionId,omitempty" json:"transactionId,omitempty"`
}

// OrderStatusPending is the only status current scope assigns.
const OrderStatusPending = "PENDING"

type Order struct {
	OrderID        string         `dynamodbav:"orderId" json:"orderId"`
	TableID        string         `dynamodbav:"tableId" json:"tableId"`
	Items          []OrderItem    `dynamodbav:"items" json:"items"`
	TotalAmount    float64        `dynamodbav:"totalAmount" json:"totalAmount"`
	PaymentDetails PaymentDetails `dynamodbav:"paymentDetails" json:"paymentDetails"`
	Status         string         `dynamodbav:"status" json:"status"`
	RecordType     string         `dynamodbav:"recordType" json:"-"`
	CreatedAt      string         `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt      string         `dynamodbav:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// OrderLine is one ITEM# row stored alongside the order header.
type OrderLine struct {
	Name      string  `dynamodbav:"name" json:"name"`
	UnitPrice float64 `dynamodbav:"unitPrice" json:"unitPrice"`
	Quantity  int64   `dynamodbav:"quantity" json:"quantity"`
	AddedAt   string  `dynamodbav:"addedAt" json:"addedAt"`
}

type ExpenseEntry struct {
	EntryID       string  `dynamodbav:"expenseId" json:"expenseId"`
	RestaurantID  string  `dynamodbav:"restaurantId" json:"restaurantId"`
	Category      string  `dynamodbav:"category" json:"category"`
	Description   string  `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Amount        float64 `dynamodbav:"amount" json:"amount"`
	Date          string  `dynamodbav:"date" json:"date"`
	PaymentMethod string  `dynamodbav:"paymentMethod" json:"paymentMethod"`
	Vendor        string  `dynamodbav:"vendor,omitempty" json:"vendor,omitempty"`
	Notes         string  `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	RecordType    string  `dynamodbav:"recordType" json:"-"`
	CreatedAt     string  `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt     string  `dynamodbav:"updatedAt" json:"updatedAt"`
}

type SaleEntry struct {
	EntryID       string  `dynamodbav:"saleId" json:"saleId"`
	RestaurantID  string  `dynamodbav:"restaurantId" json:"restaurantId"`
	ItemName      string  `dynamodbav:"itemName" json:"itemName"`
	Category      string  `dynamodbav:"category" json:"category"`
	Quantity      float64 `dynamodbav:"quantity" json:"quantity"`
	UnitPrice     float64 `dynamodbav:"unitPrice" json:"unitPrice"`
	TotalAmount   float64 `dynamodbav:"totalAmount" json:"totalAmount"`
	Date          string  `dynamodbav:"date" json:"date"`
	PaymentMethod string  `dynamodbav:"paymentMethod" json:"paymentMethod"`
	CustomerName  string  `dynamodbav:"customerName,omitempty" json:"customerName,omitempty"`
	Notes         string  `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	RecordType    string  `dynamodbav:"recordType" json:"-"`
	CreatedAt     string  `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt     string  `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Marshal converts a domain value to a store item.
func Marshal(v any) (store.Item, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return item, nil
}

// Unmarshal converts a store item back to a domain value.
func Unmarshal(item store.Item, v any) error {
	if err := attributevalue.UnmarshalMap(item, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}
