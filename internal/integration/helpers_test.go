//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("wildfire-imputer-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// engineImputer serves a trained engine directly, standing in for the
// artifact provider.
type engineImputer struct {
	engine *imputer.Engine
}

func (e engineImputer) Impute(ctx context.Context, in domain.Record, opts imputer.Options) (domain.Record, error) {
	return e.engine.Impute(ctx, in, opts)
}

func (e engineImputer) Schema(context.Context) (domain.Schema, error) {
	return e.engine.Schema(), nil
}

// trainedImputer fits a small model over two California counties and one
// Oregon county.
func trainedImputer(t *testing.T) engineImputer {
	t.Helper()
	schema := domain.Schema{Columns: []domain.Column{
		{Name: "state", Kind: domain.KindString},
		{Name: "county", Kind: domain.KindString},
		{Name: "latitude", Kind: domain.KindNumeric},
		{Name: "longitude", Kind: domain.KindNumeric},
		{Name: "doy", Kind: domain.KindNumeric},
		{Name: "season", Kind: domain.KindNumeric},
		{Name: "prefire_fuel", Kind: domain.KindNumeric},
		{Name: "risk", Kind: domain.KindNumeric},
	}}
	records := []domain.Record{
		{"state": "CA", "county": "Butte", "latitude": 39.7, "longitude": -121.6, "doy": 200.0, "season": 3.0, "prefire_fuel": 100.0, "risk": 1.0},
		{"state": "CA", "county": "Butte", "latitude": 39.8, "longitude": -121.5, "doy": 210.0, "season": 3.0, "prefire_fuel": 120.0, "risk": 3.0},
		{"state": "CA", "county": "Shasta", "latitude": 40.6, "longitude": -122.4, "doy": 230.0, "season": 3.0, "prefire_fuel": 90.0, "risk": 4.0},
		{"state": "OR", "county": "Lane", "latitude": 44.0, "longitude": -123.0, "doy": 100.0, "season": 2.0, "prefire_fuel": 50.0, "risk": 5.0},
	}
	model, err := imputer.Train(schema, records)
	require.NoError(t, err)
	return engineImputer{imputer.New(model, imputer.Config{}, discardLogger(), nil)}
}
