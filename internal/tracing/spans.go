package tracing

// Span attribute keys.
const (
	AttrCommandID     = "command.id"
	AttrCommandAPI    = "command.api"
	AttrCommandPath   = "command.path"
	AttrCommandSource = "command.source"

	AttrResultType = "result.type"
)

// SpanPrefixCommand prefixes the "<api>/<path>" of every command span.
const SpanPrefixCommand = "command.execute."

// EventCommandValidated is added once a command passed validation.
const EventCommandValidated = "command.validated"
