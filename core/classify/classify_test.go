package classify

import (
	"fmt"
	"testing"

	"github.com/warehousekit/dispatchd/core/model"
)

func TestClassify_TargetCodeIsSuccess(t *testing.T) {
	c := New(50421021)
	body := []byte(`{"data":{"msg":{"detail":{"error_id":50421021,"info":"dispatched"}}}}`)
	out := c.Classify(200, body)
	if !out.IsSuccess() {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestClassify_SuccessFlag(t *testing.T) {
	c := New(50421021)
	out := c.Classify(200, []byte(`{"success":true}`))
	if !out.IsSuccess() {
		t.Fatalf("expected success from flag, got %+v", out)
	}
	out = c.Classify(200, []byte(`{"data":{"success":true}}`))
	if !out.IsSuccess() {
		t.Fatalf("expected success from nested flag, got %+v", out)
	}
}

func TestClassify_BusinessFailureExtractsDetail(t *testing.T) {
	c := New(50421021)
	cases := []struct {
		body string
		code int
		msg  string
	}{
		{`{"data":{"msg":{"detail":{"error_id":40010,"info":"no free location"}}}}`, 40010, "no free location"},
		{`{"msg":{"detail":{"error_id":40020,"info":"area full"}}}`, 40020, "area full"},
		{`{"detail":{"error_id":40030},"info":"queue closed"}`, 40030, "queue closed"},
		{`{"error_id":"40040","detail":"manual hold"}`, 40040, "manual hold"},
	}
	for i, tc := range cases {
		out := c.Classify(200, []byte(tc.body))
		if out.Kind != model.OutcomeBusinessFailure {
			t.Fatalf("case %d: expected business failure, got %+v", i, out)
		}
		if out.Code != tc.code {
			t.Fatalf("case %d: expected code %d got %d", i, tc.code, out.Code)
		}
		if out.Message != tc.msg {
			t.Fatalf("case %d: expected message %q got %q", i, tc.msg, out.Message)
		}
	}
}

func TestClassify_PlaceholderInfoFallsBack(t *testing.T) {
	c := New(50421021)
	for _, token := range []string{"", "info", "null", "error", "ok", "success", "  OK  "} {
		body := fmt.Sprintf(`{"error_id":40050,"info":%q}`, token)
		out := c.Classify(200, []byte(body))
		if out.Message != FallbackMessage {
			t.Fatalf("token %q: expected fallback message, got %q", token, out.Message)
		}
	}
}

func TestClassify_NonHTTPSuccessIsTransportFailure(t *testing.T) {
	c := New(50421021)
	for _, status := range []int{301, 400, 401, 500, 503} {
		out := c.Classify(status, []byte(`{"success":true}`))
		if out.Kind != model.OutcomeTransportFailure {
			t.Fatalf("status %d: expected transport failure, got %+v", status, out)
		}
	}
}

func TestClassify_MalformedBody(t *testing.T) {
	c := New(50421021)
	for _, body := range [][]byte{nil, []byte(""), []byte("not json"), []byte(`[1,2]`), []byte(`"str"`)} {
		out := c.Classify(200, body)
		if out.Kind != model.OutcomeBusinessFailure {
			t.Fatalf("body %q: expected business failure, got %+v", body, out)
		}
		if out.Message != FallbackMessage {
			t.Fatalf("body %q: expected fallback message, got %q", body, out.Message)
		}
	}
}

func TestClassify_ArrayWrappedDetail(t *testing.T) {
	c := New(50421021)
	body := []byte(`{"data":{"msg":[{"detail":{"error_id":40060,"info":"lift offline"}}]}}`)
	out := c.Classify(200, body)
	if out.Code != 40060 || out.Message != "lift offline" {
		t.Fatalf("expected code 40060 / lift offline, got %+v", out)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := New(50421021)
	body := []byte(`{"error_id":40070,"info":"blocked"}`)
	first := c.Classify(200, body)
	for i := 0; i < 5; i++ {
		if got := c.Classify(200, body); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, got)
		}
	}
}

func TestTransportError(t *testing.T) {
	out := TransportError(fmt.Errorf("dial tcp: connection refused"))
	if out.Kind != model.OutcomeTransportFailure {
		t.Fatalf("expected transport failure, got %+v", out)
	}
	if out.Message == "" {
		t.Fatalf("expected error text in message")
	}
}
