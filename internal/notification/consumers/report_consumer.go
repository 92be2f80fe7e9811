package consumers

import (
	"context"
	"fmt"

	"github.com/civictrack/civictrack-backend/internal/notification/domain"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
)

// QueueName is the durable queue used when RabbitMQ is enabled
const QueueName = "civictrack.notification.report-events"

// Sink receives the notifications produced from report events
type Sink interface {
	Notify(ctx context.Context, event domain.Event)
}

// Registrar is satisfied by messaging.Consumer and messaging.LocalBus
type Registrar interface {
	RegisterHandler(eventType string, handler messaging.MessageHandler)
}

// ReportEventConsumer turns report status changes into reporter notifications
type ReportEventConsumer struct {
	sink   Sink
	logger *logger.Logger
}

// NewReportEventConsumer creates the consumer and registers its handlers
func NewReportEventConsumer(reg Registrar, sink Sink, log *logger.Logger) *ReportEventConsumer {
	c := &ReportEventConsumer{
		sink:   sink,
		logger: log,
	}
	reg.RegisterHandler(messaging.EventReportStatusChanged, c.handleStatusChanged)
	return c
}

// Subscribe binds a RabbitMQ consumer to the report exchange
func Subscribe(rmq *messaging.RabbitMQ, log *logger.Logger) (*messaging.Consumer, error) {
	consumer, err := messaging.NewConsumer(rmq, QueueName, log)
	if err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(messaging.ExchangeReports, "report.#"); err != nil {
		return nil, err
	}
	return consumer, nil
}

func (c *ReportEventConsumer) handleStatusChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.ReportStatusChangedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("report_id", data.ReportID).
		Str("status", data.NewStatus).
		Msg("received report status change")

	kind := domain.KindInfo
	if data.NewStatus == "Resolved" {
		kind = domain.KindSuccess
	}
	message := fmt.Sprintf("Report %s is now %s.", data.ReportID, data.NewStatus)
	if data.Message != "" {
		message = fmt.Sprintf("Report %s is now %s: %s", data.ReportID, data.NewStatus, data.Message)
	}

	// deliver to the reporter's feed, or the shared anonymous feed
	if data.ReporterID != "" {
		ctx = actor.WithActor(ctx, &actor.Actor{ID: data.ReporterID})
	} else {
		ctx = actor.WithActor(ctx, nil)
	}
	c.sink.Notify(ctx, domain.Event{
		Title:           "Report Update",
		Message:         message,
		Kind:            kind,
		RelatedReportID: data.ReportID,
		ActionURL:       "/track?q=" + data.ReportID,
	})
	return nil
}
