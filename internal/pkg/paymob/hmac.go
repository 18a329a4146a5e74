package paymob

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// hmacFields is the ordered field list of the transaction HMAC. Order and
// spelling (including "error_occured") are fixed by Paymob.
var hmacFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// ConcatObject builds the HMAC input from a decoded callback "obj". The map
// must come from a decoder with UseNumber so numbers keep their literal form.
func ConcatObject(obj map[string]interface{}) string {
	var b strings.Builder
	for _, field := range hmacFields {
		b.WriteString(stringify(lookup(obj, field)))
	}
	return b.String()
}

// ConcatQuery builds the HMAC input from a redirect query string, where
// the order id arrives as "order" and nested keys are already dotted.
func ConcatQuery(q url.Values) string {
	var b strings.Builder
	for _, field := range hmacFields {
		key := field
		if field == "order.id" {
			key = "order"
		}
		b.WriteString(q.Get(key))
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of data.
func Sign(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyObject checks the hmac of a callback body object in constant time.
func VerifyObject(secret string, obj map[string]interface{}, received string) bool {
	return verify(secret, ConcatObject(obj), received)
}

// VerifyQuery checks the hmac of a redirect query in constant time.
func VerifyQuery(secret string, q url.Values) bool {
	return verify(secret, ConcatQuery(q), q.Get("hmac"))
}

func verify(secret, data, received string) bool {
	if secret == "" || received == "" {
		return false
	}
	expected := Sign(secret, data)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(received))))
}

func lookup(obj map[string]interface{}, path string) interface{} {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := obj[head]
	if !ok {
		return nil
	}
	if !nested {
		return v
	}
	child, ok := v.(map[string]interface{})
	if !ok {
		// "order" is sometimes a bare id instead of an object.
		if rest == "id" {
			return v
		}
		return nil
	}
	return lookup(child, rest)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
