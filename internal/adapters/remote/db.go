package remote

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const slowQueryThreshold = time.Second

// Open prepares a connection pool for the given driver. It does not ping, so a
// process can start while the remote store is unreachable.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableAutomaticPing:                     true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}
	return db, nil
}

// Row types mirror the remote tables. They are used for reads and for
// creating the schema on local databases.

type categoryRow struct {
	ID          string  `gorm:"primaryKey"`
	Name        string  `gorm:"not null"`
	Description *string
	Weight      float64 `gorm:"not null;default:0"`
	OrderIndex  int     `gorm:"not null;default:0"`
	CreatedAt   time.Time
}

func (categoryRow) TableName() string { return ResourceKPICategories }

type kpiRow struct {
	ID          string `gorm:"primaryKey"`
	CategoryID  string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description *string
	MaxScore    float64 `gorm:"not null;default:10"`
	OrderIndex  int     `gorm:"not null;default:0"`
	CreatedAt   time.Time
}

func (kpiRow) TableName() string { return ResourceKPIs }

type academyRow struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Address       *string
	ContactPerson *string
	ContactEmail  *string
	ContactPhone  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (academyRow) TableName() string { return ResourceAcademies }

type evaluatorRow struct {
	ID            string `gorm:"primaryKey"`
	FullName      string `gorm:"not null"`
	Email         string `gorm:"not null"`
	FmfCredential string `gorm:"not null"`
	Phone         *string
	Status        string `gorm:"not null;default:active"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (evaluatorRow) TableName() string { return ResourceEvaluators }

type evaluationRow struct {
	ID             string    `gorm:"primaryKey"`
	AcademyID      string    `gorm:"not null;index"`
	EvaluatorID    string    `gorm:"not null;index"`
	EvaluationDate time.Time `gorm:"not null"`
	TotalScore     float64   `gorm:"not null;default:0"`
	Category       *string
	Status         string `gorm:"not null;default:draft"`
	Notes          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (evaluationRow) TableName() string { return ResourceEvaluations }

type scoreRow struct {
	ID           string  `gorm:"primaryKey"`
	EvaluationID string  `gorm:"not null;index"`
	KPIID        string  `gorm:"column:kpi_id;not null"`
	Score        float64 `gorm:"not null;default:0"`
	Comments     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (scoreRow) TableName() string { return ResourceEvaluationScores }

// Migrate creates the tables on a local database. Production schemas are
// owned by the hosted database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&categoryRow{},
		&kpiRow{},
		&academyRow{},
		&evaluatorRow{},
		&evaluationRow{},
		&scoreRow{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
