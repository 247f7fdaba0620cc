// Package envelope writes the uniform JSON response envelope:
//
//	{"success":true,"timestamp":"...","execution_time":"1.2ms","data":{...}}
//	{"success":false,"timestamp":"...","execution_time":"1.2ms","error":{"message":"...","fields":{...}}}
package envelope

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/jx"
)

type startKey struct{}

// WithStart records when request processing began.
func WithStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startKey{}, t)
}

// Timing is a middleware that records the request start time.
func Timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Value(startKey{}).(time.Time); ok {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithStart(r.Context(), time.Now())))
	})
}

func elapsed(ctx context.Context, now time.Time) string {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		start = now
	}
	d := now.Sub(start)
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}

func header(e *jx.Encoder, r *http.Request, success bool) {
	now := time.Now()
	e.FieldStart("success")
	e.Bool(success)
	e.FieldStart("timestamp")
	e.Str(now.UTC().Format(time.RFC3339))
	e.FieldStart("execution_time")
	e.Str(elapsed(r.Context(), now))
}

func write(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// Data writes a success envelope. data encodes the value of the "data"
// field; nil writes null.
func Data(w http.ResponseWriter, r *http.Request, status int, data func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	header(e, r, true)
	e.FieldStart("data")
	if data == nil {
		e.Null()
	} else {
		data(e)
	}
	e.ObjEnd()
	write(w, status, e)
}

// Error writes a failure envelope. fields may be nil.
func Error(w http.ResponseWriter, r *http.Request, status int, message string, fields map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	header(e, r, false)
	e.FieldStart("error")
	e.ObjStart()
	e.FieldStart("message")
	e.Str(message)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.FieldStart("fields")
		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			e.Str(fields[k])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	e.ObjEnd()
	write(w, status, e)
}
