package kafka

import (
	"context"
	"crypto/tls"
	"fmt"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Concrete franz-go based constructor, writer and reader wrappers.

type SASLConfig struct {
	Mechanism string // not supported by this adapter; set only to fail fast
	Username  string
	Password  string
}

type Config struct {
	Brokers     []string
	Topic       string
	Group       string
	TLS         *tls.Config
	SASL        *SASLConfig
	Acks        kgo.Acks
	Idempotent  bool
	ClientID    string
	Compression kgo.CompressionCodec
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

type kgoReader struct{ cl *kgo.Client }

func (r kgoReader) Poll(ctx context.Context) ([]Record, error) {
	fetches := r.cl.PollFetches(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstErr error

	fetches.EachError(func(topic string, partition int32, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("fetch %s/%d: %w", topic, partition, err)
		}
	})

	var out []Record

	fetches.EachRecord(func(rec *kgo.Record) {
		h := make(map[string]string, len(rec.Headers))
		for _, kv := range rec.Headers {
			h[kv.Key] = string(kv.Value)
		}

		out = append(out, Record{Topic: rec.Topic, Key: rec.Key, Value: rec.Value, Headers: h})
	})

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}

	return out, nil
}

// NewWithKgo builds a franz-go client based Adapter. The returned cleanup should be called to close the client.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", nerr.ErrTransportNotConfigured)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...), kgo.ConsumeTopics(topic)}
	if cfg.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.Group))
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}
	if cfg.Idempotent {
		if cfg.Compression != (kgo.CompressionCodec{}) {
			opts = append(opts, kgo.ProducerBatchCompression(cfg.Compression))
		}
	} else {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	if cfg.Acks != (kgo.Acks{}) {
		opts = append(opts, kgo.RequiredAcks(cfg.Acks))
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		return nil, nil, fmt.Errorf("%w: SASL mechanism not configured in adapter", nerr.ErrTransportNotConfigured)
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", nerr.ErrSubscribeFailed, err)
	}

	ad := New(kgoWriter{cl: cl}, kgoReader{cl: cl})
	ad.Topic = topic
	cleanup := func() { cl.Close() }

	return ad, cleanup, nil
}
