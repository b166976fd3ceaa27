//go:build integration

package artifact_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"casegate/internal/classifier"
	"casegate/internal/classifier/artifact"
	"casegate/pkg/platform/sentinel"
	"casegate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *artifact.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = artifact.NewRedisStore(s.redis.Client, artifact.WithKey("test:classifier"))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestMissingKeyIsNotFound() {
	_, err := s.store.Load(context.Background())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestSaveAndLoadModel() {
	ctx := context.Background()
	m, err := classifier.Fit([][]float64{{0, 0}, {1, 0}, {2, 0}, {10, 0}}, classifier.Config{Neighbors: 2, Contamination: 0.25})
	s.Require().NoError(err)

	s.Require().NoError(artifact.Save(ctx, s.store, m, artifact.Metadata{Threshold: "1000.00"}))

	loaded, meta, err := artifact.Load(ctx, s.store)
	s.Require().NoError(err)
	s.Equal("1000.00", meta.Threshold)
	s.Equal(classifier.Outlier, loaded.Classify(30, 0))
}
