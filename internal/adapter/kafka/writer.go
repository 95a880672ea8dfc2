// Package kafka publishes load snapshots to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/poi-map/internal/config"
	"github.com/couchcryptid/poi-map/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Message header names.
const (
	HeaderStatus = "status"
	HeaderLoadID = "load_id"
)

// FeatureMessage is the JSON value of one published feature.
type FeatureMessage struct {
	Key            domain.CoordinateKey `json:"key"`
	Lng            float64              `json:"lng"`
	Lat            float64              `json:"lat"`
	Title          string               `json:"title"`
	Address        string               `json:"address"`
	Image          string               `json:"img"`
	Localizability string               `json:"localizability"`
	Status         string               `json:"status"`
	Color          string               `json:"color"`
}

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces one message per classified feature.
// It implements loader.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes the features of one load in a single WriteMessages call
// and returns the number of messages written. Features without valid
// coordinates are skipped.
func (w *Writer) Publish(ctx context.Context, loadID string, features []domain.ClassifiedFeature) (int, error) {
	msgs := make([]kafkago.Message, 0, len(features))
	for i := range features {
		if !features[i].Coordinate.Valid {
			continue
		}
		msg, err := serializeToMessage(loadID, features[i])
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write features: %w", err)
	}
	w.logger.Debug("features published", "load_id", loadID, "count", len(msgs))
	return len(msgs), nil
}

// Close flushes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a feature into a Kafka message keyed by its
// coordinate key, so updates of one POI land on the same partition.
func serializeToMessage(loadID string, f domain.ClassifiedFeature) (kafkago.Message, error) {
	c := f.Coordinate.Rounded()
	data, err := json.Marshal(FeatureMessage{
		Key:            f.Key,
		Lng:            c.Lng,
		Lat:            c.Lat,
		Title:          f.Title,
		Address:        f.Address,
		Image:          f.Image,
		Localizability: f.Localizability,
		Status:         f.Status.String(),
		Color:          f.Color(),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(f.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderStatus, Value: []byte(f.Status.String())},
			{Key: HeaderLoadID, Value: []byte(loadID)},
		},
	}, nil
}
