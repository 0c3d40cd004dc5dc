// Package logger configures log/slog for the notification engine and
// provides typed attribute helpers so log keys stay consistent across
// packages.
//
//	log := logger.New(logger.WithJSONFormat(), logger.WithLevel(slog.LevelDebug))
//	log.Info("notification dispatched",
//	    logger.TenantID(rec.TenantID),
//	    logger.NotificationID(rec.ID),
//	    logger.Channel(rec.Channel),
//	)
package logger
