package kafka

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestProducerSendSetsKeyAndKind(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"a":1}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	p := NewProducerWith("ppdirect.events", sp)
	require.NoError(t, p.Send(context.Background(), "chat.message.sent", "conv-1", []byte(`{"a":1}`)))
	require.NoError(t, p.Close())
}

func TestProducerSendError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewProducerWith("ppdirect.events", sp)
	require.ErrorIs(t, p.Send(context.Background(), "chat.message.sent", "", []byte("x")), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducerSendCanceled(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerWith("ppdirect.events", sp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Send(ctx, "k", "", nil), context.Canceled)
	require.NoError(t, p.Close())
}

func TestBuildBaseConfig(t *testing.T) {
	app := DefaultConfig()
	app.ProducerCompression = "lz4"
	cfg := BuildBaseConfig(app)
	require.Equal(t, sarama.CompressionLZ4, cfg.Producer.Compression)
	require.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	require.True(t, cfg.Producer.Return.Successes)
}

// Needs a broker: PPD_TEST_KAFKA_BROKERS=127.0.0.1:9092
func TestProducerAgainstBroker(t *testing.T) {
	brokers := os.Getenv("PPD_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("PPD_TEST_KAFKA_BROKERS not set")
	}
	app := DefaultConfig()
	app.Brokers = strings.Split(brokers, ",")
	app.Topic = "ppdirect.events.test"
	app.EnsureTopic = true
	p, err := NewProducer(app)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Send(context.Background(), "chat.message.sent", "conv-1", []byte(`{}`)))
}
