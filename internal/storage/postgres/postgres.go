// Package postgres implements storage.Store on PostgreSQL via gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/signal"
	"github.com/rustamli/aitrader/internal/storage"
	"github.com/rustamli/aitrader/internal/storage/models"
)

// gormLogger bridges gorm's logger.Interface onto zap.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

type postgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore connects to PostgreSQL and returns a storage.Store.
func NewStore(dsn string, zapLogger *zap.Logger) (storage.Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStore{
		db:     db,
		logger: zapLogger,
	}, nil
}

// RunMigrations applies the schema under a pg advisory lock so concurrent
// control-plane instances do not race the migration.
func (p *postgresStore) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(4217)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(4217)")

	err = p.db.AutoMigrate(
		&models.BotInstance{},
		&models.TradingSignal{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (p *postgresStore) CreateBot(ctx context.Context, record *bot.Record) error {
	return p.db.WithContext(ctx).Create(models.FromRecord(record)).Error
}

func (p *postgresStore) GetBot(ctx context.Context, id string) (*bot.Record, error) {
	var row models.BotInstance
	err := p.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &bot.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return row.ToRecord(), nil
}

func (p *postgresStore) GetBotByName(ctx context.Context, name string) (*bot.Record, error) {
	var row models.BotInstance
	err := p.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &bot.NotFoundError{ID: name}
	}
	if err != nil {
		return nil, err
	}
	return row.ToRecord(), nil
}

func (p *postgresStore) ListBots(ctx context.Context) ([]*bot.Record, error) {
	var rows []models.BotInstance
	err := p.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]*bot.Record, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].ToRecord())
	}
	return records, nil
}

func (p *postgresStore) UpdateBot(ctx context.Context, record *bot.Record) error {
	result := p.db.WithContext(ctx).
		Model(&models.BotInstance{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"state":        string(record.State),
			"container_id": record.ContainerID,
			"error_reason": record.ErrorReason,
			"started_at":   record.StartedAt,
			"stopped_at":   record.StoppedAt,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &bot.NotFoundError{ID: record.ID}
	}
	return nil
}

func (p *postgresStore) DeleteBot(ctx context.Context, id string) error {
	result := p.db.WithContext(ctx).Where("id = ?", id).Delete(&models.BotInstance{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &bot.NotFoundError{ID: id}
	}
	return nil
}

func (p *postgresStore) SaveSignal(ctx context.Context, event *signal.Event) error {
	return p.db.WithContext(ctx).Create(models.FromEvent(event)).Error
}

func (p *postgresStore) ListSignals(ctx context.Context, botID string, limit int) ([]*signal.Event, error) {
	var rows []models.TradingSignal
	err := p.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("timestamp desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]*signal.Event, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].ToEvent())
	}
	return events, nil
}

func (p *postgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
