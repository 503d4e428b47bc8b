package kafka

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestEncodeAddsEventHeader(t *testing.T) {
	m, err := encode("signals", "signal.transition", []byte("sig-1"), map[string]string{"state": "hit_target"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if m.Topic != "signals" || string(m.Key) != "sig-1" {
		t.Fatalf("message = %+v", m)
	}
	if len(m.Headers) != 1 || m.Headers[0].Key != HeaderEventType || string(m.Headers[0].Value) != "signal.transition" {
		t.Fatalf("headers = %+v", m.Headers)
	}
	var body map[string]string
	if err := json.Unmarshal(m.Value, &body); err != nil || body["state"] != "hit_target" {
		t.Fatalf("value = %s, %v", m.Value, err)
	}
	if m.Time.IsZero() || m.Time.Location().String() != "UTC" {
		t.Fatalf("time = %v", m.Time)
	}
}

func TestEncodeRawBytes(t *testing.T) {
	m, err := encode("signals", "", nil, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(m.Value) != `{"a":1}` || len(m.Headers) != 0 {
		t.Fatalf("message = %+v", m)
	}
	if _, err := encode("signals", "x", nil, func() {}); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]kafka.Compression{"": kafka.Snappy, "snappy": kafka.Snappy, "gzip": kafka.Gzip, "lz4": kafka.Lz4, "zstd": kafka.Zstd}
	for in, want := range cases {
		got, err := parseCompression(in)
		if err != nil || got != want {
			t.Fatalf("parseCompression(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseCompression("brotli"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli")); err == nil {
		t.Fatalf("expected compression error")
	}
}
