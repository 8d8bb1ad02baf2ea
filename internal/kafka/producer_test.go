package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPublishAfterCloseIsDropped(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, 4, zap.NewNop())
	p.Publish("orders", []byte("o1"), []byte(`{}`))
	p.Close()

	// a request racing shutdown must not hit the closed inbox
	assert.NotPanics(t, func() { p.Publish("orders", []byte("o2"), []byte(`{}`)) })
}

func TestCloseIsIdempotent(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, 4, zap.NewNop())
	p.Close()
	assert.NotPanics(t, p.Close)
}
