package task

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/image-crawler/internal/model"
	"github.com/aliskhannn/image-crawler/internal/publisher"
)

type fakeProducer struct {
	topics []string
	values [][]byte
	err    error
}

func (f *fakeProducer) Publish(topic string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.values = append(f.values, value)
	return nil
}

func TestSubmitKeepsIdentifier(t *testing.T) {
	p := &fakeProducer{}
	s := NewService(p, "inbound_images")

	task, err := s.Submit(model.ImageTask{URL: "https://example.test/a.jpg", Identifier: "id-1", Source: "example"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", task.Identifier)

	require.Len(t, p.values, 1)
	assert.Equal(t, "inbound_images", p.topics[0])

	var sent model.ImageTask
	require.NoError(t, json.Unmarshal(p.values[0], &sent))
	assert.Equal(t, task, sent)
}

func TestSubmitGeneratesIdentifier(t *testing.T) {
	p := &fakeProducer{}

	task, err := NewService(p, "inbound_images").Submit(model.ImageTask{URL: "https://example.test/a.jpg", Source: "example"})
	require.NoError(t, err)

	_, err = uuid.Parse(task.Identifier)
	assert.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	p := &fakeProducer{}

	_, err := NewService(p, "inbound_images").Submit(model.ImageTask{Identifier: "id-1"})
	assert.ErrorIs(t, err, ErrMissingURL)
	assert.Empty(t, p.values)
}

func TestSubmitBufferFull(t *testing.T) {
	p := &fakeProducer{err: publisher.ErrBufferFull}

	_, err := NewService(p, "inbound_images").Submit(model.ImageTask{URL: "u"})
	assert.ErrorIs(t, err, publisher.ErrBufferFull)
}
