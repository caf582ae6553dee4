package zap_engine

import (
	"context"

	loggerwrapper "github.com/PavelAgarkov/lease-lock/logger"
)

func FlushLogs() {
	Sync()
}

func WriteInfoLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	Info(ctx, entry.Msg, unpack(entry)...)
}

func WriteDebugLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	Debug(ctx, entry.Msg, unpack(entry)...)
}

func WriteWarnLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	Warn(ctx, entry.Msg, unpack(entry)...)
}

func WriteErrorLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	Error(ctx, entry.Msg, unpack(entry)...)
}

func WriteFatalLog(ctx context.Context, entry *loggerwrapper.LogEntry) {
	Fatal(ctx, entry.Msg, unpack(entry)...)
}
