package handler

const (
	// HostModule is the module name of the functions a guest imports.
	HostModule = "http_handler"

	// FuncHandleRequest is the guest export called for each request:
	// () -> (i64 ctx_next). See CtxNext.
	FuncHandleRequest = "handle_request"

	// FuncHandleResponse is the guest export called after the next handler
	// when FuncHandleRequest asked for it: (i32 req_ctx, i32 is_error) -> ().
	FuncHandleResponse = "handle_response"

	// FuncEnableFeatures enables features and returns those the host
	// supports: (i32 features) -> (i32 features). Called during start, it
	// applies to all requests; called during a request, only to that one.
	FuncEnableFeatures = "enable_features"

	// FuncGetConfig writes the guest configuration:
	// (i32 buf, i32 buf_limit) -> (i32 len).
	FuncGetConfig = "get_config"

	// FuncLogEnabled returns 1 when a level is logged: (i32 level) -> (i32).
	FuncLogEnabled = "log_enabled"

	// FuncLog logs a message: (i32 level, i32 message, i32 message_len) -> ().
	FuncLog = "log"

	// FuncGetMethod writes the request method:
	// (i32 buf, i32 buf_limit) -> (i32 len).
	FuncGetMethod = "get_method"

	// FuncSetMethod overwrites the request method:
	// (i32 method, i32 method_len) -> ().
	FuncSetMethod = "set_method"

	// FuncGetURI writes the request URI, the path and query, such as
	// "/v1.0/hi?name=panda": (i32 buf, i32 buf_limit) -> (i32 len).
	FuncGetURI = "get_uri"

	// FuncSetURI overwrites the request URI: (i32 uri, i32 uri_len) -> ().
	FuncSetURI = "set_uri"

	// FuncGetProtocolVersion writes the protocol, such as "HTTP/1.1":
	// (i32 buf, i32 buf_limit) -> (i32 len).
	FuncGetProtocolVersion = "get_protocol_version"

	// FuncGetHeaderNames writes lower-cased, NUL-terminated header names:
	// (i32 kind, i32 buf, i32 buf_limit) -> (i64 count_len).
	FuncGetHeaderNames = "get_header_names"

	// FuncGetHeaderValues writes NUL-terminated values of a header:
	// (i32 kind, i32 name, i32 name_len, i32 buf, i32 buf_limit) ->
	// (i64 count_len).
	FuncGetHeaderValues = "get_header_values"

	// FuncSetHeaderValue overwrites a header:
	// (i32 kind, i32 name, i32 name_len, i32 value, i32 value_len) -> ().
	FuncSetHeaderValue = "set_header_value"

	// FuncAddHeaderValue adds a header value, keeping existing ones:
	// (i32 kind, i32 name, i32 name_len, i32 value, i32 value_len) -> ().
	FuncAddHeaderValue = "add_header_value"

	// FuncRemoveHeader removes a header:
	// (i32 kind, i32 name, i32 name_len) -> ().
	FuncRemoveHeader = "remove_header"

	// FuncReadBody reads up to buf_limit bytes of a body:
	// (i32 kind, i32 buf, i32 buf_limit) -> (i64 eof_len).
	FuncReadBody = "read_body"

	// FuncWriteBody writes to a body, replacing what the next handler would
	// see or send: (i32 kind, i32 body, i32 body_len) -> ().
	FuncWriteBody = "write_body"

	// FuncGetRemoteAddr writes the client address:
	// (i32 buf, i32 buf_limit) -> (i32 len).
	FuncGetRemoteAddr = "get_remote_addr"

	// FuncGetStatusCode returns the response status: () -> (i32).
	FuncGetStatusCode = "get_status_code"

	// FuncSetStatusCode overwrites the response status: (i32 status) -> ().
	FuncSetStatusCode = "set_status_code"
)
