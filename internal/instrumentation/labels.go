package instrumentation

// Label values shared by the recorders and their callers.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPartial = "partial"
	StatusSkipped = "skipped"

	ServiceGmail = "gmail"
	ServiceIMAP  = "imap"

	OperationList       = "list"
	OperationGet        = "get"
	OperationSend       = "send"
	OperationAttachment = "attachment"
	OperationFetch      = "fetch"
)

// Exporter names accepted by METRICS_EXPORTER and TRACING_EXPORTER.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
