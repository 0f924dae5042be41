package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/experimentkit/internal/database"
	"github.com/BaSui01/experimentkit/workflow"
)

// ErrRunNotFound 指定运行不存在
var ErrRunNotFound = errors.New("workflow run not found")

const (
	defaultListLimit = 20
	maxListLimit     = 200
	saveAttempts     = 3
)

// ListOptions 运行列表过滤条件
type ListOptions struct {
	Workflow string
	Status   string
	Limit    int
	Offset   int
}

// Store 基于 GORM 的运行历史存储
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewStore 创建运行历史存储
func NewStore(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger.With(zap.String("component", "run_history"))}
}

// AutoMigrate 用 GORM 建表，生产环境使用 internal/migration
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(&RunRecord{}, &StepRecord{})
}

// Save 在事务中写入运行及其步骤
func (s *Store) Save(ctx context.Context, res *workflow.WorkflowResult, inputs map[string]any) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("save run: missing run id")
	}
	rec := FromResult(res, inputs)

	err := s.pool.WithTransactionRetry(ctx, saveAttempts, func(tx *gorm.DB) error {
		if err := tx.Omit("Steps").Create(rec).Error; err != nil {
			return err
		}
		if len(rec.Steps) == 0 {
			return nil
		}
		return tx.Create(&rec.Steps).Error
	})
	if err != nil {
		s.logger.Error("failed to save workflow run", zap.String("run_id", res.ID), zap.Error(err))
		return fmt.Errorf("save run %s: %w", res.ID, err)
	}

	s.logger.Debug("workflow run saved",
		zap.String("run_id", res.ID),
		zap.String("workflow", res.WorkflowName),
		zap.Int("steps", len(rec.Steps)),
	)
	return nil
}

// Get 返回运行详情，包含按执行顺序排列的步骤
func (s *Store) Get(ctx context.Context, id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.pool.DB().WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &rec, nil
}

// List 按开始时间倒序返回运行摘要（不含步骤）
func (s *Store) List(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	q := s.pool.DB().WithContext(ctx).Model(&RunRecord{})
	if opts.Workflow != "" {
		q = q.Where("workflow_name = ?", opts.Workflow)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}

	var out []RunRecord
	if err := q.Order("started_at DESC").Limit(limit).Offset(opts.Offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// CountByStatus 返回各状态的运行数量
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.pool.DB().WithContext(ctx).Model(&RunRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// Prune 删除早于 before 开始的运行，返回删除的运行数
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		ids := tx.Model(&RunRecord{}).Select("id").Where("started_at < ?", before)
		if err := tx.Where("run_id IN (?)", ids).Delete(&StepRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("started_at < ?", before).Delete(&RunRecord{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("pruned workflow runs", zap.Int64("deleted", deleted), zap.Time("before", before))
	}
	return deleted, nil
}

// Ping 检查底层数据库
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
