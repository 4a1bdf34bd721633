package telemetry

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type queryStartKey struct{}

type registerFunc func(name string, fn func(*gorm.DB)) error

// gormHook pairs the before and after registration points of one GORM processor.
type gormHook struct {
	operation string
	before    registerFunc
	after     registerFunc
}

func gormHooks(db *gorm.DB) []gormHook {
	cb := db.Callback()
	return []gormHook{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
}

// timedHooks is a GORM plugin that stamps the statement context before every
// operation and hands the elapsed time to after once the operation completes.
// Installing it twice on the same DB fails with gorm.ErrRegistered.
type timedHooks struct {
	name  string
	after func(db *gorm.DB, operation string, elapsed time.Duration)
}

// Name implements gorm.Plugin.
func (p *timedHooks) Name() string {
	return p.name
}

// Initialize implements gorm.Plugin.
func (p *timedHooks) Initialize(db *gorm.DB) error {
	prefix, after := p.name, p.after
	for _, h := range gormHooks(db) {
		op := h.operation
		if err := h.before(prefix+":before_"+op, markQueryStart); err != nil {
			return fmt.Errorf("register %s before %s: %w", prefix, op, err)
		}
		if err := h.after(prefix+":after_"+op, func(db *gorm.DB) {
			start, ok := queryStart(db)
			if !ok {
				return
			}
			after(db, op, time.Since(start))
		}); err != nil {
			return fmt.Errorf("register %s after %s: %w", prefix, op, err)
		}
	}
	return nil
}

func markQueryStart(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
}

func queryStart(db *gorm.DB) (time.Time, bool) {
	if db.Statement == nil || db.Statement.Context == nil {
		return time.Time{}, false
	}
	start, ok := db.Statement.Context.Value(queryStartKey{}).(time.Time)
	return start, ok
}
