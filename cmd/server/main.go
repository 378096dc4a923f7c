// Command server runs the back-office HTTP API.
//
// By default it talks to DynamoDB using the ambient AWS credentials.
// --local runs against a BadgerDB database on disk and --memory runs
// fully in-memory, both useful for development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/mrsandwich/backoffice/api"
	"github.com/mrsandwich/backoffice/books"
	"github.com/mrsandwich/backoffice/config"
	"github.com/mrsandwich/backoffice/coupon"
	"github.com/mrsandwich/backoffice/customer"
	"github.com/mrsandwich/backoffice/ledger"
	"github.com/mrsandwich/backoffice/notify"
	"github.com/mrsandwich/backoffice/order"
	"github.com/mrsandwich/backoffice/store"
	"github.com/mrsandwich/backoffice/store/badgerstore"
	"github.com/mrsandwich/backoffice/store/dynamostore"
	"github.com/mrsandwich/backoffice/store/memstore"
	"github.com/mrsandwich/backoffice/table"
)

func main() {
	local := flag.Bool("local", false, "use a local BadgerDB database instead of DynamoDB")
	memory := flag.Bool("memory", false, "use an in-memory store; data is lost on exit")
	port := flag.Int("port", 0, "override the configured HTTP port")
	flag.Parse()

	if err := run(*local, *memory, *port); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(local, memory bool, portOverride int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if portOverride != 0 {
		cfg.Port = portOverride
	}

	def := table.Default(cfg.TableName)

	var st store.Store
	var closeStore func() error
	switch {
	case memory:
		log.Println("using in-memory store")
		st = memstore.New(def)
	case local:
		log.Printf("using local database at %s", cfg.DataDir)
		bst, err := badgerstore.New(badgerstore.Options{Path: cfg.DataDir}, def)
		if err != nil {
			return fmt.Errorf("opening local database: %w", err)
		}
		st = bst
		closeStore = bst.Close
	default:
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("loading aws config: %w", err)
		}
		st = dynamostore.New(dynamodb.NewFromConfig(awsCfg), def)
	}
	if closeStore != nil {
		defer closeStore()
	}

	customers := customer.New(st)
	rewards := ledger.New(st, customers)
	coupons := coupon.New(st)
	orders := order.New(st)
	booksSvc := books.New(st, cfg.RestaurantID)
	notifier := notify.NewClient(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID)

	handler := api.NewHandler(customers, rewards, coupons, orders, booksSvc, notifier, cfg.Admin)
	server := api.NewServer(cfg.Port, handler)
	return server.Run()
}
