package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"bidimapper/internal/logger"
)

// slowQuery 归档查询的慢阈值。归档在事件派发路径上，阈值比常规
// 业务库收紧一个量级。
const slowQuery = 100 * time.Millisecond

// archiveLogger 把 gorm 的日志接口桥到 zerolog 后端。
// 级别过滤交给底层 Logger，这里只处理 gorm 的静默开关与慢查询判定。
type archiveLogger struct {
	log    logger.Logger
	silent bool
}

func newArchiveLogger(l logger.Logger) *archiveLogger {
	return &archiveLogger{log: l.With("component", "archive")}
}

// LogMode gorm 要求的级别开关；Silent 之外全部透传给底层
func (a *archiveLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &archiveLogger{log: a.log, silent: level == gormlogger.Silent}
}

func (a *archiveLogger) Info(ctx context.Context, msg string, args ...any) {
	if !a.silent {
		a.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (a *archiveLogger) Warn(ctx context.Context, msg string, args ...any) {
	if !a.silent {
		a.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (a *archiveLogger) Error(ctx context.Context, msg string, args ...any) {
	if !a.silent {
		a.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace 归档 SQL 回执。record-not-found 不算错误（Recent 允许空结果）。
func (a *archiveLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if a.silent {
		return
	}
	elapsed := time.Since(begin)
	if err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) {
		sql, _ := fc()
		a.log.Error("归档 SQL 失败", "error", err, "sql", sql)
		return
	}
	if elapsed >= slowQuery {
		sql, rows := fc()
		a.log.Warn("归档慢查询", "elapsedMs", float64(elapsed.Microseconds())/1000, "rows", rows, "sql", sql)
		return
	}
	_, rows := fc()
	a.log.Debug("归档 SQL", "elapsedMs", float64(elapsed.Microseconds())/1000, "rows", rows)
}
