package storage

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"bidimapper/internal/logger"
	"bidimapper/internal/store"
)

// TrafficRecord 一条已完结请求的归档行
type TrafficRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RequestID string `gorm:"index"`
	Context   string `gorm:"index"`
	URL       string
	Method    string
	Status    int
	Phase     string
	MimeType  string
	BodySize  int
	CreatedAt time.Time
}

// Archive 流量归档。DSN 默认 ":memory:"，进程退出即消失，不落盘。
type Archive struct {
	db     *gorm.DB
	prefix string
	log    logger.Logger
}

// Open 打开归档库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*Archive, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newArchiveLogger(l),
	})
	if err != nil {
		return nil, err
	}
	a := &Archive{db: db, prefix: prefix, log: l}
	if err := db.Table(a.table()).AutoMigrate(&TrafficRecord{}); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) table() string { return a.prefix + "traffic" }

// Record 写入一条完结请求；失败只记日志，不影响事件派发
func (a *Archive) Record(r *store.Request) {
	rec := TrafficRecord{
		RequestID: string(r.ID),
		Context:   string(r.Context),
		URL:       r.URL,
		Method:    r.Method,
		Status:    r.Status,
		Phase:     string(r.Phase),
		MimeType:  r.MimeType,
		BodySize:  r.BodySize,
	}
	if err := a.db.Table(a.table()).Create(&rec).Error; err != nil {
		a.log.Warn("流量归档写入失败", "request", rec.RequestID, "error", err)
	}
}

// Recent 最近 limit 条归档
func (a *Archive) Recent(limit int) ([]TrafficRecord, error) {
	var out []TrafficRecord
	err := a.db.Table(a.table()).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

// Close 关闭底层连接
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
