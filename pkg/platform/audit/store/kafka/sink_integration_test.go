//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "casegate/pkg/platform/audit"
	auditkafka "casegate/pkg/platform/audit/store/kafka"
	"casegate/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	broker string
	topic  string
	sink   *auditkafka.Sink
}

func TestSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
}

func (s *SinkSuite) SetupTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.topic = "audit-" + uuid.NewString()
	admClient, err := kgo.NewClient(kgo.SeedBrokers(s.broker))
	s.Require().NoError(err)
	defer admClient.Close()

	resp, err := kadm.NewClient(admClient).CreateTopics(ctx, 1, 1, nil, s.topic)
	s.Require().NoError(err)
	s.Require().NoError(resp.Error())

	s.sink, err = auditkafka.New([]string{s.broker}, s.topic)
	s.Require().NoError(err)
}

func (s *SinkSuite) TearDownTest() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *SinkSuite) TestAppendProducesDecodableRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Require().NoError(s.sink.Ping(ctx))

	event := audit.Event{
		ID:          uuid.New(),
		Timestamp:   time.Now().UTC(),
		Action:      audit.ActionIntakeRejectedOutlier,
		Fingerprint: "--------------------------------",
		CrisisID:    2,
		Tag:         "P",
	}
	s.Require().NoError(s.sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) == 0 {
		fetches := consumer.PollFetches(ctx)
		s.Require().Empty(fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	}

	s.Require().Len(records, 1)
	s.Equal(event.ID.String(), string(records[0].Key))
	decoded, err := auditkafka.Decode(records[0].Value)
	s.Require().NoError(err)
	s.Equal(event.Action, decoded.Action)
	s.Equal(event.Fingerprint, decoded.Fingerprint)
	s.Equal(event.CrisisID, decoded.CrisisID)
}
