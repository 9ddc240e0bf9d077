package task

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-crawler/internal/model"
)

// ErrMissingURL is returned when a submitted task has no URL.
var ErrMissingURL = errors.New("url is required")

// producer defines the interface for placing messages onto a broker topic.
type producer interface {
	Publish(topic string, value []byte) error
}

// Service submits crawl tasks to the inbound topic.
type Service struct {
	producer producer
	topic    string
}

// NewService creates a new Service publishing to topic.
func NewService(p producer, topic string) *Service {
	return &Service{producer: p, topic: topic}
}

// Submit enqueues task for crawling. A task without an identifier gets a
// fresh UUID. The submitted task is returned.
func (s *Service) Submit(task model.ImageTask) (model.ImageTask, error) {
	if task.URL == "" {
		return model.ImageTask{}, ErrMissingURL
	}

	// Generate a unique ID for the image if the caller did not supply one.
	if task.Identifier == "" {
		task.Identifier = uuid.NewString()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return model.ImageTask{}, fmt.Errorf("submit: failed to marshal task: %w", err)
	}

	if err := s.producer.Publish(s.topic, data); err != nil {
		return model.ImageTask{}, fmt.Errorf("submit: failed to enqueue task: %w", err)
	}

	return task, nil
}
