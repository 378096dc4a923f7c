package entity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mrsandwich/backoffice/apperr"
	"github.com/mrsandwich/backoffice/store"
)

// Key layout, one table for every entity kind. The formats are part of
// the persisted contract and must not change:
//
//	CUSTOMER#<id>    / PROFILE
//	CUSTOMER#<id>    / REWARD#<entryId>
//	COUPON#<code>    / DETAILS
//	ORDER#<orderId>  / DETAILS, ITEM#<n>
//	RESTAURANT#<id>  / EXPENSE#<date>#<entryId>
//	RESTAURANT#<id>  / SALE#<date>#<entryId>
const (
	CustomerPartitionPrefix   = "CUSTOMER#"
	CouponPartitionPrefix     = "COUPON#"
	OrderPartitionPrefix      = "ORDER#"
	RestaurantPartitionPrefix = "RESTAURANT#"

	ProfileSort       = "PROFILE"
	DetailsSort       = "DETAILS"
	RewardSortPrefix  = "REWARD#"
	ItemSortPrefix    = "ITEM#"
	ExpenseSortPrefix = "EXPENSE#"
	SaleSortPrefix    = "SALE#"
)

// ValidateID rejects identifiers that are empty or contain the key
// delimiter. An unescaped '#' inside an identifier would make prefix
// queries bleed across logical entities, so it is rejected outright
// rather than escaped.
func ValidateID(kind, id string) error {
	if id == "" {
		return apperr.InvalidArgumentf("%s id is empty", kind)
	}
	if strings.Contains(id, "#") {
		return apperr.InvalidArgumentf("%s id %q contains '#'", kind, id)
	}
	return nil
}

// CustomerIDFromPhone derives the customer id from a phone number by
// stripping the national prefix (first three characters, e.g. "+91").
func CustomerIDFromPhone(phone string) (string, error) {
	if len(phone) <= 3 {
		return "", apperr.InvalidArgumentf("phone number %q too short", phone)
	}
	id := phone[3:]
	if err := ValidateID("customer", id); err != nil {
		return "", err
	}
	return id, nil
}

func CustomerKey(customerID string) (store.Key, error) {
	if err := ValidateID("customer", customerID); err != nil {
		return store.Key{}, err
	}
	return store.Key{Partition: CustomerPartitionPrefix + customerID, Sort: ProfileSort}, nil
}

func RewardKey(customerID string, entryID int64) (store.Key, error) {
	if err := ValidateID("customer", customerID); err != nil {
		return store.Key{}, err
	}
	if entryID <= 0 {
		return store.Key{}, apperr.InvalidArgumentf("reward entry id %d", entryID)
	}
	return store.Key{
		Partition: CustomerPartitionPrefix + customerID,
		Sort:      RewardSortPrefix + strconv.FormatInt(entryID, 10),
	}, nil
}

// RewardEntryIDFromSort parses the entry id back out of a sort key.
func RewardEntryIDFromSort(sort string) (int64, error) {
	raw, ok := strings.CutPrefix(sort, RewardSortPrefix)
	if !ok {
		return 0, fmt.Errorf("not a reward sort key: %q", sort)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("reward sort key %q: %w", sort, err)
	}
	return id, nil
}

func CouponKey(code string) (store.Key, error) {
	if err := ValidateID("coupon", code); err != nil {
		return store.Key{}, err
	}
	return store.Key{Partition: CouponPartitionPrefix + code, Sort: DetailsSort}, nil
}

func OrderKey(orderID string) (store.Key, error) {
	if err := ValidateID("order", orderID); err != nil {
		return store.Key{}, err
	}
	return store.Key{Partition: OrderPartitionPrefix + orderID, Sort: DetailsSort}, nil
}

// OrderItemKey builds the sort key for line n of an order. The line
// number is zero-padded so lexicographic sort-key order matches line
// order past nine lines.
func OrderItemKey(orderID string, n int) (store.Key, error) {
	if err := ValidateID("order", orderID); err != nil {
		return store.Key{}, err
	}
	return store.Key{
		Partition: OrderPartitionPrefix + orderID,
		Sort:      fmt.Sprintf("%s%03d", ItemSortPrefix, n),
	}, nil
}

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateDate accepts ISO dates only; date-prefixed sort keys depend
// on the fixed-width YYYY-MM-DD form for range queries to be contiguous.
func ValidateDate(date string) error {
	if !dateFormat.MatchString(date) {
		return apperr.InvalidArgumentf("date %q is not YYYY-MM-DD", date)
	}
	return nil
}

func ExpenseKey(restaurantID, date, entryID string) (store.Key, error) {
	return ledgerEntryKey(ExpenseSortPrefix, restaurantID, date, entryID)
}

func SaleKey(restaurantID, date, entryID string) (store.Key, error) {
	return ledgerEntryKey(SaleSortPrefix, restaurantID, date, entryID)
}

func ledgerEntryKey(prefix, restaurantID, date, entryID string) (store.Key, error) {
	if err := ValidateID("restaurant", restaurantID); err != nil {
		return store.Key{}, err
	}
	if err := ValidateDate(date); err != nil {
		return store.Key{}, err
	}
	if err := ValidateID("entry", entryID); err != nil {
		return store.Key{}, err
	}
	return store.Key{
		Partition: RestaurantPartitionPrefix + restaurantID,
		Sort:      prefix + date + "#" + entryID,
	}, nil
}

// RestaurantPartition builds the partition key for expense/sale queries.
func RestaurantPartition(restaurantID string) (string, error) {
	if err := ValidateID("restaurant", restaurantID); err != nil {
		return "", err
	}
	return RestaurantPartitionPrefix + restaurantID, nil
}

// DateRangeBound returns the inclusive upper sort-key bound for a date
// range query. '~' sorts after every character entry ids are built from,
// so <prefix><date>#~ covers all entries on the end date.
func DateRangeBound(prefix, endDate string) string {
	return prefix + endDate + "#~"
}
