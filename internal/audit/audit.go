// Package audit records user actions and API calls to the application log
// and to the persistent logs table.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/logger"
)

// Levels stored in the logs table.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARNING"
	LevelError = "ERROR"
)

// Action types.
const (
	ActionSubmit        = "submit"
	ActionManualEntry   = "manual_entry"
	ActionApprove       = "approve"
	ActionReject        = "reject"
	ActionRestore       = "restore"
	ActionEdit          = "edit"
	ActionDelete        = "delete"
	ActionRestoreAll    = "restore_all"
	ActionPurgeRejected = "purge_rejected"
	ActionCreateProject = "create_project"
	ActionDeleteProject = "delete_project"
	ActionBackup        = "backup"
	ActionExport        = "export"
	ActionAPICall       = "api_call"
)

// LogWriter persists audit records.
type LogWriter interface {
	InsertLog(ctx context.Context, level, message, userID, actionType string) (int64, error)
}

// Recorder writes every record to zap and, when a LogWriter is set, to the
// database. Database failures are logged and otherwise ignored.
type Recorder struct {
	w LogWriter
}

// New returns a Recorder. w may be nil.
func New(w LogWriter) *Recorder {
	return &Recorder{w: w}
}

// UserAction records that user performed action, with optional details.
func (r *Recorder) UserAction(ctx context.Context, user, action, details string) {
	msg := fmt.Sprintf("User Action: %s - %s", user, action)
	if details != "" {
		msg += " - " + details
	}
	logger.Log(ctx).Info(ctx, msg,
		zap.String("user", user), zap.String("action", action))
	r.persist(ctx, LevelInfo, msg, user, action)
}

// APICall records one completion call. err is nil on success.
func (r *Recorder) APICall(ctx context.Context, endpoint string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	msg := fmt.Sprintf("API Call: %s - Status: %s - Duration: %.2fs", endpoint, status, d.Seconds())

	log := logger.Log(ctx)
	if err != nil {
		msg += " - Error: " + err.Error()
		log.Error(ctx, msg, zap.String("endpoint", endpoint), zap.Duration("duration", d), zap.Error(err))
		r.persist(ctx, LevelError, msg, "", ActionAPICall)
		return
	}
	log.Info(ctx, msg, zap.String("endpoint", endpoint), zap.Duration("duration", d))
	r.persist(ctx, LevelInfo, msg, "", ActionAPICall)
}

// Warn records a data-quality or workflow warning.
func (r *Recorder) Warn(ctx context.Context, user, action, msg string) {
	logger.Log(ctx).Warn(ctx, msg, zap.String("user", user), zap.String("action", action))
	r.persist(ctx, LevelWarn, msg, user, action)
}

func (r *Recorder) persist(ctx context.Context, level, msg, user, action string) {
	if r == nil || r.w == nil {
		return
	}
	if _, err := r.w.InsertLog(ctx, level, msg, user, action); err != nil {
		logger.Log(ctx).Error(ctx, "write audit log",
			zap.String("level", strings.ToLower(level)), zap.Error(err))
	}
}
