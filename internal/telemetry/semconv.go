package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by tickwire instruments.
const (
	AttrEnvironment  = attribute.Key("environment")
	AttrCallback     = attribute.Key("callback")
	AttrEventType    = attribute.Key("event.type")
	AttrTopic        = attribute.Key("topic")
	AttrInstrument   = attribute.Key("instrument")
	AttrReason       = attribute.Key("reason")
	AttrResult       = attribute.Key("result")
	AttrOperation    = attribute.Key("operation")
	AttrRequestKind  = attribute.Key("request.kind")
	AttrSubscription = attribute.Key("subscription.kind")
)

// Instrument names.
const (
	MetricCallbacksProcessed   = "dispatcher.callbacks.processed"
	MetricCallbacksDropped     = "dispatcher.callbacks.dropped"
	MetricEventsEmitted        = "dispatcher.events.emitted"
	MetricCallbackDuration     = "dispatcher.callback.duration"
	MetricIngestReceiveErrors  = "ingest.receive.errors"
	MetricIngestPanics         = "ingest.panics.recovered"
	MetricBusPublished         = "eventbus.events.published"
	MetricBusDropped           = "eventbus.delivery.dropped"
	MetricFanoutSize           = "eventbus.fanout.size"
	MetricGatewayConnects      = "gateway.connect.attempts"
	MetricGatewayRequests      = "gateway.requests"
	MetricJournalRows          = "journal.rows.written"
	MetricJournalWriteDuration = "journal.write.duration"
	MetricMigrations           = "journal.migrations"
)

// Result values
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDropped = "dropped"
)

// CallbackAttributes returns attributes for dispatcher callback metrics.
func CallbackAttributes(callback, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrCallback.String(callback),
		AttrResult.String(result),
	}
}

// DropAttributes returns attributes for dropped-callback metrics.
func DropAttributes(callback, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrCallback.String(callback),
		AttrReason.String(reason),
	}
}

// EventAttributes returns attributes for emitted event metrics.
func EventAttributes(eventType, topic string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrEventType.String(eventType),
		AttrTopic.String(topic),
	}
}

// OperationResultAttributes returns attributes for operation metrics with result classification.
func OperationResultAttributes(operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}
