package handler

import (
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/storefront/internal/domain/paging"
)

const maxBodySize = 1 << 20

// errBadJSON is returned for bodies that are not a JSON object.
var errBadJSON = errors.New("request body must be a JSON object")

// object is a decoded JSON request body. Values are kept raw and converted
// on access so that numbers sent as strings are accepted.
type object map[string]jx.Raw

// readObject decodes the request body. An empty body yields an empty object.
func readObject(r *http.Request) (object, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	obj := object{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return obj, nil
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, errBadJSON
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		obj[string(key)] = append(jx.Raw(nil), raw...)
		return nil
	}); err != nil {
		return nil, errBadJSON
	}
	return obj, nil
}

// has reports whether key is present and not null.
func (o object) has(key string) bool {
	raw, ok := o[key]
	return ok && raw.Type() != jx.Null
}

// str returns a string field. Numbers and booleans are returned verbatim.
func (o object) str(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	switch raw.Type() {
	case jx.String:
		s, err := jx.DecodeBytes(raw).Str()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case jx.Number, jx.Bool:
		return raw.String()
	default:
		return ""
	}
}

// int returns an integer field. ok is false when the field is missing or
// not an integer.
func (o object) int(key string) (v int64, ok bool) {
	s := o.str(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func queryInt(r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(key)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// pageFromQuery reads limit with either offset or a 1-based page number.
func pageFromQuery(r *http.Request) paging.Page {
	limit, _ := queryInt(r, "limit")
	if offset, ok := queryInt(r, "offset"); ok {
		return paging.New(int(limit), int(offset))
	}
	page, _ := queryInt(r, "page")
	return paging.FromPageNumber(int(page), int(limit))
}

// fieldErrors is a validation failure with per-field messages.
type fieldErrors map[string]string

func (f fieldErrors) Error() string { return "validation failed" }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates s and converts failures to fieldErrors.
func (h *Handler) check(s any) error {
	err := h.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := fieldErrors{}
	for _, fe := range verrs {
		out[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "numeric":
		return "must contain only digits"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
