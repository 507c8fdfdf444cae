package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestNatsToMessage(t *testing.T) {
	msg := &nats.Msg{
		Subject: "sentinel.events.security",
		Data:    []byte(`{"id":"e1"}`),
		Reply:   "_INBOX.1",
		Header:  nats.Header{},
	}
	msg.Header.Set("Sentinel-Trace-Id", "trace-1")

	m := natsToMessage(msg)
	assert.Equal(t, "sentinel.events.security", m.Subject)
	assert.Equal(t, `{"id":"e1"}`, string(m.Data))
	assert.Equal(t, "_INBOX.1", m.Reply)
	assert.Equal(t, "trace-1", m.Metadata["Sentinel-Trace-Id"])
	assert.False(t, m.Timestamp.IsZero())
}

func TestNatsToMessage_NoHeaders(t *testing.T) {
	m := natsToMessage(&nats.Msg{Subject: "s"})
	assert.Nil(t, m.Metadata)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Equal(t, "telhawk-sentinel", cfg.Name)
}
