package srvreg

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseBody(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		res := Response{Body: `{"ok":true,"count":2}`}
		body, ok := res.ParseBody().(map[string]interface{})
		if !ok {
			t.Fatalf("ParseBody() = %T, want map", res.ParseBody())
		}
		if body["ok"] != true {
			t.Errorf("ok = %v, want true", body["ok"])
		}
	})

	t.Run("array", func(t *testing.T) {
		res := Response{Body: `[1,2,3]`}
		body, ok := res.ParseBody().([]interface{})
		if !ok {
			t.Fatalf("ParseBody() = %T, want slice", res.ParseBody())
		}
		if len(body) != 3 {
			t.Errorf("len = %d, want 3", len(body))
		}
	})

	t.Run("empty and non-json give nil", func(t *testing.T) {
		if got := (&Response{Body: ""}).ParseBody(); got != nil {
			t.Errorf("ParseBody(empty) = %v, want nil", got)
		}
		if got := (&Response{Body: "plain text"}).ParseBody(); got != nil {
			t.Errorf("ParseBody(text) = %v, want nil", got)
		}
	})
}

func TestExchangeSerialization(t *testing.T) {
	req := Request{
		Method:    "POST",
		Path:      "/tasks",
		Body:      `{"title":"write report"}`,
		RequestID: "req-123",
		Timestamp: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	res := Response{
		StatusCode: 201,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"id":"TSK-1","title":"write report"}`,
	}
	res.BodyInterface = res.ParseBody()

	exchange := &Exchange{Request: req, Response: res}
	raw, err := exchange.SerializeToBytes()
	if err != nil {
		t.Fatalf("SerializeToBytes: %v", err)
	}

	var decoded Exchange
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Request.RequestID != "req-123" {
		t.Errorf("request_id = %q, want req-123", decoded.Request.RequestID)
	}
	if decoded.Response.StatusCode != 201 {
		t.Errorf("status = %d, want 201", decoded.Response.StatusCode)
	}
	body, ok := decoded.Response.BodyInterface.(map[string]interface{})
	if !ok {
		t.Fatalf("body_interface = %T, want map", decoded.Response.BodyInterface)
	}
	if body["id"] != "TSK-1" {
		t.Errorf("body id = %v, want TSK-1", body["id"])
	}
}
