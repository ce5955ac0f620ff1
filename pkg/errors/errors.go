// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error. Codes are shaped
// "area.operation.reason"; the trailing reason segment drives the Is*
// predicates and the HTTP status mapping.
type Code string

const (
	CodeStoreDocumentNotFound   Code = "store.document.get.not_found"
	CodeStoreDocumentAddInvalid Code = "store.document.add.invalid_input"
	CodeStoreQueryRejected      Code = "store.query.rejected"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreUnavailable        Code = "store.connection.unavailable"
	CodeStoreCallFailure        Code = "store.call.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreConflict           Code = "store.conflict"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeResilienceBreakerOpen Code = "resilience.call.breaker_open"
	CodeResilienceTimeout     Code = "resilience.call.timeout"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderResponseInvalid Code = "provider.response.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderBudgetExceeded  Code = "provider.budget.exceeded"
	CodeProviderUnsupported     Code = "provider.backend.unsupported"

	CodeSearchQueryInvalid     Code = "search.query.invalid_input"
	CodeSearchEmbedFailure     Code = "search.embed.failure"
	CodeSearchSynthesisFailure Code = "search.synthesis.failure"
	CodeSearchTaxonomyFailure  Code = "search.taxonomy.failure"

	CodeCacheEncodeFailure Code = "cache.encode.failure"

	CodeIngestReadFailure  Code = "ingest.read.failure"
	CodeIngestInputInvalid Code = "ingest.input.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLIServerNotRunning Code = "cli.server.not_running"
	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldDependency(value string) Attr {
	return Field("dependency", value)
}

func FieldOperation(value string) Attr {
	return Field("operation", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldSource(value string) Attr {
	return Field("source", value)
}

func FieldRequestID(value string) Attr {
	return Field("request_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsBudgetExceeded(err error) bool {
	r := reason(CodeOf(err))
	return r == "exceeded" || r == "budget_exceeded"
}

// IsBreakerOpen reports whether the error is a circuit-breaker rejection,
// i.e. the call was refused without reaching the dependency.
func IsBreakerOpen(err error) bool {
	return reason(CodeOf(err)) == "breaker_open"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUnavailable(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

// IsRejected reports whether the dependency accepted the connection but
// refused the operation itself (a query error rather than a transport one).
func IsRejected(err error) bool {
	return reason(CodeOf(err)) == "rejected"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsBudgetExceeded(err):
		return http.StatusTooManyRequests
	case IsBreakerOpen(err), IsUnavailable(err):
		return http.StatusServiceUnavailable
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
