//go:build integration

package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodian/internal/platform/kafka/admin"
	"custodian/internal/platform/kafka/consumer"
	"custodian/internal/platform/kafka/producer"
	"custodian/pkg/domain"
	audit "custodian/pkg/platform/audit"
	auditconsumer "custodian/pkg/platform/audit/consumer"
	auditpostgres "custodian/pkg/platform/audit/store/postgres"
	"custodian/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	kafka    *containers.KafkaContainer
	store    *auditpostgres.Store
	producer *producer.Producer
	topics   Topics
	logger   *slog.Logger
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.kafka = containers.GetManager().GetKafka(s.T())
	s.store = auditpostgres.New(s.pg.DB)
	s.logger = slog.New(slog.DiscardHandler)

	p, err := producer.New(producer.Config{Brokers: s.kafka.Brokers, ClientID: "relay-test"}, s.logger)
	s.Require().NoError(err)
	s.producer = p
}

func (s *RelaySuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
	suffix := uuid.NewString()[:8]
	s.topics = Topics{
		Compliance: "compliance-" + suffix,
		Security:   "security-" + suffix,
		Operations: "operations-" + suffix,
	}
	s.Require().NoError(admin.EnsureTopics(context.Background(), s.producer.Client(),
		admin.TopicSpec{Name: s.topics.Compliance},
		admin.TopicSpec{Name: s.topics.Security},
		admin.TopicSpec{Name: s.topics.Operations},
	))
}

func (s *RelaySuite) append(action audit.AuditEvent, asset domain.AssetID) {
	s.Require().NoError(s.store.Append(context.Background(), audit.Event{
		Timestamp: time.Now().UTC(),
		ActorID:   domain.PrincipalID(uuid.New()),
		Action:    action.String(),
		AssetID:   asset,
		RequestID: domain.NewChangeRequestID(),
	}))
}

func (s *RelaySuite) pendingOutbox() int {
	var n int
	s.Require().NoError(s.pg.DB.QueryRow(`SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&n))
	return n
}

func (s *RelaySuite) TestRelayMarksEntriesPublished() {
	asset := domain.NewAssetID()
	s.append(audit.EventChangeRequestSubmitted, asset)
	s.append(audit.EventChangeRequestApproved, asset)
	s.append(audit.EventResolutionDenied, asset)

	w := NewWorker(s.store, s.producer, s.topics, s.logger, WithBatchSize(10))
	n, err := w.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Equal(0, s.pendingOutbox())

	n, err = w.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RelaySuite) TestComplianceEventsReachTheAuditTable() {
	asset := domain.NewAssetID()
	s.append(audit.EventChangeRequestSubmitted, asset)
	s.append(audit.EventChangeRequestApproved, asset)
	s.append(audit.EventResolutionDenied, asset)

	w := NewWorker(s.store, s.producer, s.topics, s.logger)
	_, err := w.RelayOnce(context.Background())
	s.Require().NoError(err)

	router := auditconsumer.NewRouter(s.logger, auditconsumer.NewLogHandler(s.logger))
	router.Register(s.topics.Compliance, auditconsumer.NewComplianceHandler(s.store, s.logger))
	c, err := consumer.New(consumer.Config{
		Brokers: s.kafka.Brokers,
		GroupID: "relay-test-" + uuid.NewString(),
		Topics:  []string{s.topics.Compliance, s.topics.Security},
	}, router, s.logger)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		s.NoError(<-done)
	}()

	s.Eventually(func() bool {
		records, err := s.store.ListByAsset(context.Background(), asset)
		return err == nil && len(records) == 2
	}, 30*time.Second, 200*time.Millisecond)
}
