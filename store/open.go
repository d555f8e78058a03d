package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dinq_federation/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 数据库模式
const (
	ModePostgres = "postgres"
	ModeMySQL    = "mysql"
	ModeSQLite   = "sqlite"
	ModeMemory   = "memory" // 内存 sqlite，仅测试使用
)

// CustomLogger 自定义 GORM 日志器：只打印慢查询和真实错误
type CustomLogger struct {
	Log           *zap.Logger
	SlowThreshold time.Duration // 慢查询阈值
}

func (l *CustomLogger) LogMode(level logger.LogLevel) logger.Interface {
	return l
}

func (l *CustomLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	// 不打印 Info 日志
}

func (l *CustomLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	// 不打印 Warn 日志
}

func (l *CustomLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	// 只打印真实错误，忽略 "record not found"
	if msg != "record not found" {
		l.Log.Error("gorm error", zap.String("msg", fmt.Sprintf(msg, data...)))
	}
}

func (l *CustomLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	// 只打印慢查询（超过阈值）或真实错误
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		sql, rows := fc()
		l.Log.Error("gorm query failed", zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	} else if elapsed >= l.SlowThreshold {
		sql, rows := fc()
		l.Log.Warn("slow sql", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}

// Open 按模式打开数据库并建表
func Open(mode, dsn string, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch mode {
	case ModePostgres:
		dialector = postgres.Open(dsn)
	case ModeMySQL:
		dialector = mysql.Open(dsn)
	case ModeSQLite:
		dialector = sqlite.Open(dsn)
	case ModeMemory:
		dialector = sqlite.Open("file::memory:")
	default:
		return nil, fmt.Errorf("unknown database mode %q", mode)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: &CustomLogger{
			Log:           log,
			SlowThreshold: 100 * time.Millisecond, // 慢查询阈值：100ms
		},
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", mode, err)
	}

	// 获取底层的 sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeSQLite, ModeMemory:
		// sqlite 单写者；内存库每个连接都是独立数据库
		sqlDB.SetMaxOpenConns(1)
	default:
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(20)
	}

	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	log.Info("database connected", zap.String("mode", mode))
	return New(db), nil
}
