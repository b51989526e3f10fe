package types

type RunMode string

const (
	// ModeLocal runs the worker with in-memory pub/sub
	ModeLocal RunMode = "local"
	// ModeWorker runs the worker against Kafka
	ModeWorker RunMode = "worker"
	// ModeBillRun invoices every invoiceable account once and exits
	ModeBillRun RunMode = "billrun"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
)

type PubSubProvider string

const (
	PubSubProviderMemory PubSubProvider = "memory"
	PubSubProviderKafka  PubSubProvider = "kafka"
)
