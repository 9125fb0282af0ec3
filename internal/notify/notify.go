package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Channel identifies a delivery route. Delivery itself is owned by the
// downstream sink; this package only hands notifications off.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelInApp Channel = "in_app"
)

type Notification struct {
	Type     string
	Channel  Channel
	Message  string
	Metadata map[string]string
}

// Sink accepts a notification for eventual delivery. Implementations must
// not block on delivery; a returned error means the hand-off itself failed.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

type logSink struct {
	log *zap.Logger
}

// NewLogSink returns a sink that records notifications in the application
// log. It stands in for a real delivery backend in development and tests.
func NewLogSink(log *zap.Logger) Sink {
	return &logSink{log: log.Named("notify")}
}

func (s *logSink) Publish(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("type", n.Type),
		zap.String("channel", string(n.Channel)),
		zap.String("message", n.Message),
	}
	for k, v := range n.Metadata {
		fields = append(fields, zap.String("meta_"+k, v))
	}
	s.log.Info("notification", fields...)
	return nil
}

var Module = fx.Module("notify",
	fx.Provide(NewLogSink),
)
