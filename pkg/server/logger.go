package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the part of the database the log handler needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const insertLogQuery = `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

// DBLogHandler is a slog.Handler that writes records to research_logs and
// optionally forwards them to a console handler.
type DBLogHandler struct {
	db    Execer
	jobID uuid.UUID
	level slog.Leveler
	next  slog.Handler

	attrs  []slog.Attr
	prefix string
}

// NewDBLogHandler returns a handler for jobID. next may be nil.
func NewDBLogHandler(db Execer, jobID uuid.UUID, level slog.Leveler, next slog.Handler) *DBLogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &DBLogHandler{db: db, jobID: jobID, level: level, next: next}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		_ = h.next.Handle(ctx, r)
	}
	if r.Level < h.level.Level() {
		return nil
	}

	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(meta, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(meta, h.prefix, a)
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Logs must survive a cancelled run.
	_, err = h.db.Exec(context.WithoutCancel(ctx), insertLogQuery, h.jobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	cp.attrs = append(cp.attrs, h.attrs...)
	for _, a := range attrs {
		cp.attrs = append(cp.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	if h.next != nil {
		cp.next = h.next.WithAttrs(attrs)
	}
	return &cp
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	if h.next != nil {
		cp.next = h.next.WithGroup(name)
	}
	return &cp
}

func addAttr(meta map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			addAttr(meta, groupPrefix, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	if v.Kind() == slog.KindDuration {
		meta[prefix+a.Key] = v.Duration().String()
		return
	}
	switch val := v.Any().(type) {
	case error:
		meta[prefix+a.Key] = val.Error()
	default:
		meta[prefix+a.Key] = val
	}
}
