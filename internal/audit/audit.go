package audit

import (
	"context"

	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

// Audit actions for the realtime service.
const (
	ActionAuth       = "realtime.auth"
	ActionAuthFailed = "realtime.auth_failed"
	ActionJoinRoom   = "realtime.join_room"
	ActionLeaveRoom  = "realtime.leave_room"
	ActionDisconnect = "realtime.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
