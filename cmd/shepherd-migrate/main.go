package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/fleetconf/shepherd/pkg/storage"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/shepherd", "Shepherd data directory")
	backupPath = flag.String("backup", "", "Path to backup the database before migration (default: <data-dir>/shepherd.db.backup)")
	noBackup   = flag.Bool("no-backup", false, "Skip the pre-migration backup")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Shepherd Database Migration Tool - v2 component schema")
	log.Println("======================================================")

	dbPath := filepath.Join(*dataDir, "shepherd.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", dbPath)
	}
	log.Printf("Database: %s", dbPath)

	if !*noBackup {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("Backup created successfully")
	}

	store, err := storage.NewBoltStore(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	migrated, err := store.MigrateComponents()
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if migrated == 0 {
		log.Println("No legacy component records found - database is already using the current schema")
		return
	}
	log.Printf("Migrated %d component records", migrated)
	log.Println("Migration completed successfully")
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
