package paymob

import (
	"net/url"
	"strings"
	"testing"
)

const fixtureSecret = "fixture-secret"

const fixtureBody = `{
  "type": "TRANSACTION",
  "obj": {
    "id": 192036465,
    "pending": false,
    "amount_cents": 10000,
    "success": true,
    "is_auth": false,
    "is_capture": false,
    "is_standalone_payment": false,
    "is_voided": false,
    "is_refunded": false,
    "is_3d_secure": true,
    "integration_id": 4097558,
    "has_parent_transaction": false,
    "order": {"id": 217503754, "merchant_order_id": "user-1_starter_1767225600000"},
    "created_at": "2026-03-01T12:30:45.123456",
    "currency": "EGP",
    "source_data": {"pan": "2346", "type": "card", "sub_type": "MasterCard"},
    "error_occured": false,
    "owner": 302852,
    "payment_key_claims": {"extra": {"correlation": "{\"u\":\"user-1\"}"}}
  }
}`

// Computed independently from the concatenated field string.
const fixtureHMAC = "00074e9de89f0bcd1cb2eb843c41e0af4719e0f7064ee11d18d5e820f39a23cbf2a2640b4ae8c4c0f3a673091d4a94a46aef5bda4485a6db304ffeeaf2a12721"

const fixtureConcat = "100002026-03-01T12:30:45.123456EGPfalsefalse1920364654097558truefalsefalsefalsefalsefalse217503754302852false2346MasterCardcardtrue"

func TestConcatObjectMatchesFieldOrder(t *testing.T) {
	cb, err := ParseCallback([]byte(fixtureBody))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if got := ConcatObject(cb.Fields); got != fixtureConcat {
		t.Fatalf("concat mismatch\n got %s\nwant %s", got, fixtureConcat)
	}
}

func TestVerifyObjectFixture(t *testing.T) {
	cb, err := ParseCallback([]byte(fixtureBody))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if got := Sign(fixtureSecret, ConcatObject(cb.Fields)); got != fixtureHMAC {
		t.Fatalf("hmac mismatch: %s", got)
	}
	if !VerifyObject(fixtureSecret, cb.Fields, strings.ToUpper(fixtureHMAC)) {
		t.Fatal("expected fixture to verify")
	}
}

func TestVerifyObjectRejectsAnyMutatedField(t *testing.T) {
	mutations := map[string]string{
		"amount_cents": `"amount_cents": 10000`,
		"success":      `"success": true`,
		"order id":     `"order": {"id": 217503754`,
		"pan":          `"pan": "2346"`,
		"currency":     `"currency": "EGP"`,
		"owner":        `"owner": 302852`,
	}
	replacements := map[string]string{
		"amount_cents": `"amount_cents": 10001`,
		"success":      `"success": false`,
		"order id":     `"order": {"id": 217503755`,
		"pan":          `"pan": "2347"`,
		"currency":     `"currency": "USD"`,
		"owner":        `"owner": 302853`,
	}
	for name, from := range mutations {
		body := strings.Replace(fixtureBody, from, replacements[name], 1)
		if body == fixtureBody {
			t.Fatalf("%s: mutation did not apply", name)
		}
		cb, err := ParseCallback([]byte(body))
		if err != nil {
			t.Fatalf("%s: ParseCallback: %v", name, err)
		}
		if VerifyObject(fixtureSecret, cb.Fields, fixtureHMAC) {
			t.Fatalf("%s: mutated payload still verified", name)
		}
	}
}

func TestMissingNestedFieldsStringifyEmpty(t *testing.T) {
	body := strings.Replace(fixtureBody, `"source_data": {"pan": "2346", "type": "card", "sub_type": "MasterCard"},`, "", 1)
	cb, err := ParseCallback([]byte(body))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	const want = "63dfbd605928b1c5d89213278b5ffe857ab2d9c0d382d5fb127aa283a76355c475b2a9c2047fba3032afd9a9b183695810fdbd257b6d78ab42fea1911c10df36"
	if got := Sign(fixtureSecret, ConcatObject(cb.Fields)); got != want {
		t.Fatalf("hmac mismatch: %s", got)
	}
}

func TestVerifyQueryFixture(t *testing.T) {
	q := url.Values{}
	q.Set("amount_cents", "10000")
	q.Set("created_at", "2026-03-01T12:30:45.123456")
	q.Set("currency", "EGP")
	q.Set("error_occured", "false")
	q.Set("has_parent_transaction", "false")
	q.Set("id", "192036465")
	q.Set("integration_id", "4097558")
	q.Set("is_3d_secure", "true")
	q.Set("is_auth", "false")
	q.Set("is_capture", "false")
	q.Set("is_refunded", "false")
	q.Set("is_standalone_payment", "false")
	q.Set("is_voided", "false")
	q.Set("order", "217503754")
	q.Set("owner", "302852")
	q.Set("pending", "false")
	q.Set("source_data.pan", "2346")
	q.Set("source_data.sub_type", "MasterCard")
	q.Set("source_data.type", "card")
	q.Set("success", "true")
	q.Set("hmac", fixtureHMAC)

	if !VerifyQuery(fixtureSecret, q) {
		t.Fatal("expected redirect query to verify")
	}

	q.Set("success", "false")
	if VerifyQuery(fixtureSecret, q) {
		t.Fatal("expected mutated query to fail")
	}
}

func TestVerifyFailsClosedWithoutSecretOrSignature(t *testing.T) {
	cb, _ := ParseCallback([]byte(fixtureBody))
	if VerifyObject("", cb.Fields, fixtureHMAC) {
		t.Fatal("empty secret must not verify")
	}
	if VerifyObject(fixtureSecret, cb.Fields, "") {
		t.Fatal("empty signature must not verify")
	}
}
