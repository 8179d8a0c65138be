package bootstrap

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/config"
)

// Options controls one-time database initialization steps.
type Options struct {
	InitSQLPath string // optional raw SQL script executed before migration
	AutoMigrate bool
	SeedNonProd bool
}

// SetupDatabase opens the configured database, runs migrations and seeds
// defaults outside production.
func SetupDatabase(out io.Writer, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{}
	}

	driver := config.GlobalConfig.Database.Driver
	if driver == "" {
		driver = "sqlite"
	}
	dsn := config.GlobalConfig.Database.DSN
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(
			log.New(out, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if opts.InitSQLPath != "" {
		if err := execSQLFile(db, opts.InitSQLPath); err != nil {
			return nil, fmt.Errorf("init sql: %w", err)
		}
	}

	if opts.AutoMigrate {
		if err := db.AutoMigrate(
			&models.ProviderConfig{},
			&models.VoiceConfig{},
			&models.CallLog{},
			&models.UserChannel{},
		); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	if opts.SeedNonProd && config.GlobalConfig.Server.Mode != "production" {
		seeder := &SeedService{db: db}
		if err := seeder.SeedAll(); err != nil {
			return nil, fmt.Errorf("seed defaults: %w", err)
		}
	}

	return db, nil
}

func execSQLFile(db *gorm.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(data), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
