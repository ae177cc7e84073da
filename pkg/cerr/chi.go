package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"

	"github.com/860844175/review-system/pkg/clog"
)

type responseReceiverKey struct{}

type responseReceiver struct {
	status   int
	response any
	err      error
}

func contextWithResponseReceiver(ctx context.Context, rr *responseReceiver) context.Context {
	return context.WithValue(ctx, responseReceiverKey{}, rr)
}

func responseReceiverFromContext(ctx context.Context) *responseReceiver {
	if rr, ok := ctx.Value(responseReceiverKey{}).(*responseReceiver); ok {
		return rr
	}
	return nil
}

func SetJSONResponse(ctx context.Context, response any) {
	SetJSONResponseWithStatus(ctx, http.StatusOK, response)
}

func SetJSONResponseWithStatus(ctx context.Context, status int, response any) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.status = status
		rr.response = response
	}
}

func SetJSONError(ctx context.Context, err error) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewJSONResponseChiMiddleware lets handlers hand back a value or an error via
// SetJSONResponse / SetJSONError and writes the JSON body once they return.
func NewJSONResponseChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rr := &responseReceiver{}
			ctx := contextWithResponseReceiver(r.Context(), rr)
			next.ServeHTTP(rw, r.WithContext(ctx))
			writeResponse(ctx, rw, rr)
		})
	}
}

type httpErrorDetail struct {
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message"`
}

type httpError struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []httpErrorDetail `json:"details,omitempty"`
}

func writeResponse(ctx context.Context, rw http.ResponseWriter, rr *responseReceiver) {
	if rr.err != nil {
		writeJSONError(ctx, rw, Normalize(ctx, rr.err))
		return
	}
	if rr.response == nil {
		// handler wrote the response itself
		return
	}
	status := rr.status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(ctx, rw, status, rr.response)
}

func encode(v any) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, response any) {
	buf, err := encode(response)
	if err != nil {
		writeJSONError(ctx, rw, Normalize(ctx, NewError(Internal, "server error", err)))
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

// WriteError writes err as the JSON error body. Handlers outside the
// response middleware, such as auth middleware, call it directly.
func WriteError(ctx context.Context, rw http.ResponseWriter, err error) {
	writeJSONError(ctx, rw, Normalize(ctx, err))
}

func writeJSONError(ctx context.Context, rw http.ResponseWriter, origErr *Error) {
	body := httpError{Code: origErr.Code.String(), Message: origErr.Msg}
	for _, d := range origErr.Details {
		if v, ok := d.(*validate.Violation); ok {
			body.Details = append(body.Details, httpErrorDetail{RuleID: v.GetRuleId(), Message: v.GetMessage()})
		}
	}
	buf, err := encode(body)
	if err != nil {
		buf = bytes.NewBufferString(`{"success":false,"code":"internal","message":"server error"}`)
		origErr.Err = errors.Join(origErr.Err, err)
		clog.AddError(ctx, origErr)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(origErr.Code.HTTPCode())
	if _, err := rw.Write(buf.Bytes()); err != nil {
		origErr.Err = errors.Join(origErr.Err, err)
		clog.AddError(ctx, origErr)
	}
}
