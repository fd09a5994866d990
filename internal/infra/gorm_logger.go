package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// sqlZapLogger 把 GORM 的 SQL 日志桥接到 zap
// 记忆管线的写路径是高频小事务,慢查询阈值从数据库配置读入
type sqlZapLogger struct {
	log           *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

func newSQLZapLogger(log *zap.Logger, level gormLogger.LogLevel, slowThreshold time.Duration) *sqlZapLogger {
	return &sqlZapLogger{
		log:           log,
		level:         level,
		slowThreshold: slowThreshold,
	}
}

// LogMode 返回指定级别的副本
func (l *sqlZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	copied := *l
	copied.level = level
	return &copied
}

func (l *sqlZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Info {
		l.log.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *sqlZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *sqlZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Error {
		l.log.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace 记录单条 SQL 的耗时与行数
// 记录不存在不算错误:存储层用它表达块/档案缺失的哨兵语义
func (l *sqlZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	query, rows := fc()
	fields := []zap.Field{
		zap.Duration("duration", elapsed),
		zap.String("query", query),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.log.Error("SQL 执行失败", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.log.Warn("SQL 慢查询", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormLogger.Info:
		l.log.Debug("SQL 执行", fields...)
	}
}
