// Snapshot tool: export the database to an xz stream or restore one into a
// fresh database, without going through the HTTP admin endpoint.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gavlu/dailyreps-backup-server/internal/keyValStore"
	"github.com/gavlu/dailyreps-backup-server/internal/snapshot"
)

func main() {
	dbPath := flag.String("db", "./data/dailyreps.db", "database directory")
	restore := flag.Bool("restore", false, "restore from stdin instead of exporting to stdout")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Path:   *dbPath,
		Logger: log,
	})
	if err != nil {
		log.Fatalf("error opening database: %v", err)
	}
	defer kv.Close()

	manager := snapshot.NewManager(kv)

	if *restore {
		if err := manager.Restore(context.Background(), os.Stdin); err != nil {
			log.Fatalf("restore failed: %v", err)
		}
		log.Info("restore complete")
		return
	}

	if err := manager.Export(context.Background(), os.Stdout); err != nil {
		log.Fatalf("export failed: %v", err)
	}
}
