package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Text handler for development, JSON for production
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("error", err.Error())),
	}
}

// WithFields adds multiple fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.Int("size", c.Writer.Size()),
	)
}

// Business logic logging methods

// LogOrderCreated logs when a purchase creates an order
func (l *Logger) LogOrderCreated(ctx context.Context, orderID, ticketType string, quantity int) {
	l.Logger.InfoContext(ctx,
		"Order Created",
		slog.String("order_id", orderID),
		slog.String("ticket_type", ticketType),
		slog.Int("quantity", quantity),
	)
}

// LogPaymentTransition logs a payment status transition applied by reconciliation
func (l *Logger) LogPaymentTransition(ctx context.Context, paymentID, from, to, source string) {
	l.Logger.InfoContext(ctx,
		"Payment Status Transition",
		slog.String("payment_id", paymentID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("source", source),
	)
}

// LogTerminalConflict logs a status signal that arrived after the order
// already reached a terminal state
func (l *Logger) LogTerminalConflict(ctx context.Context, paymentID, stored, candidate, source string) {
	l.Logger.WarnContext(ctx,
		"Terminal Status Conflict Ignored",
		slog.String("payment_id", paymentID),
		slog.String("stored", stored),
		slog.String("candidate", candidate),
		slog.String("source", source),
	)
}

// Security logging methods

// LogWebhookRejected logs a webhook that failed signature verification
func (l *Logger) LogWebhookRejected(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Webhook Rejected",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// LogAuthFailure logs failed admin authentication
func (l *Logger) LogAuthFailure(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Authentication Failure",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// Ledger logging methods

// LogLedgerInconsistency logs a confirm-sale that found fewer reserved units
// than expected; accounting needs attention if this ever fires
func (l *Logger) LogLedgerInconsistency(ctx context.Context, ticketType string, quantity int) {
	l.Logger.ErrorContext(ctx,
		"Inconsistent Stock Ledger",
		slog.String("ticket_type", ticketType),
		slog.Int("quantity", quantity),
	)
}

// LogReservationsSwept logs the outcome of an expiry sweep run
func (l *Logger) LogReservationsSwept(ctx context.Context, count int) {
	l.Logger.InfoContext(ctx,
		"Expired Reservations Swept",
		slog.Int("count", count),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.InfoContext(ctx, msg, args...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
