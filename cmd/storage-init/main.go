// Command storage-init provisions the tables and queue used by the habits
// API. Resources that already exist are left untouched.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	tables := []string{os.Getenv("HABITS_TABLE"), os.Getenv("COMPLETIONS_TABLE")}
	if tables[0] == "" || tables[1] == "" {
		log.Fatal("missing HABITS_TABLE or COMPLETIONS_TABLE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := createTables(ctx, connStr, tables); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := createQueues(ctx, connStr, []string{os.Getenv("HABIT_EVENTS_QUEUE")}); err != nil {
		log.Fatalf("create queues: %v", err)
	}
	log.Info("storage ready")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		switch {
		case err == nil:
			log.WithField("table", name).Info("table created")
		case alreadyExists(err, string(aztables.TableAlreadyExists)):
			log.WithField("table", name).Debug("table exists")
		default:
			return err
		}
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		switch {
		case err == nil:
			log.WithField("queue", name).Info("queue created")
		case alreadyExists(err, queueAlreadyExists):
			log.WithField("queue", name).Debug("queue exists")
		default:
			return err
		}
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
