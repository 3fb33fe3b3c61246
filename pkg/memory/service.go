package memory

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/graph"
	"github.com/nopea/nopea/pkg/identifier"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/telemetry"
)

// Decay parameters are fixed; tests pin exact trajectories.
const (
	decayInterval = time.Hour
	decayFactor   = 0.98
)

// recordBuffer bounds the ingestion mailbox. RecordDeploy never blocks:
// when the buffer is full the record is dropped with a warning.
const recordBuffer = 256

type contextQuery struct {
	service   string
	namespace string
	reply     chan Context
}

type statsQuery struct {
	reply chan Stats
}

// Service is the single owner of the knowledge graph.
type Service struct {
	records chan DeployOutcome
	queries chan contextQuery
	stats   chan statsQuery
	stop    chan struct{}
	stopped chan struct{}

	g     *graph.Graph
	cache *cache.Cache
	ids   *identifier.Generator
	log   zerolog.Logger
}

func NewService(c *cache.Cache) *Service {
	return &Service{
		records: make(chan DeployOutcome, recordBuffer),
		queries: make(chan contextQuery),
		stats:   make(chan statsQuery),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		g:       graph.New(),
		cache:   c,
		ids:     identifier.NewGenerator(),
		log:     logger.Component("memory"),
	}
}

// Start restores the graph from the cache's snapshot slot (falling back to
// an empty graph on any restore failure) and launches the owner loop.
func (s *Service) Start() {
	if blob, ok := s.cache.GetGraphSnapshot(); ok {
		g, err := decodeSnapshot(blob)
		if err != nil {
			s.log.Warn().Err(err).Msg("graph snapshot rejected, starting empty")
		} else {
			s.g = g
			s.log.Info().Int("nodes", g.NodeCount()).Int("relationships", g.RelationshipCount()).
				Msg("graph restored from snapshot")
		}
	}
	go s.run()
}

// Stop shuts the owner loop down and waits for it to drain.
func (s *Service) Stop() {
	close(s.stop)
	<-s.stopped
}

// RecordDeploy submits an outcome for ingestion. It never blocks and never
// fails observably; overload drops the record with a warning.
func (s *Service) RecordDeploy(outcome DeployOutcome) {
	select {
	case s.records <- outcome:
	default:
		s.log.Warn().Str("service", outcome.Service).Msg("memory mailbox full, dropping deploy record")
	}
}

// GetDeployContext returns the graph's view of a service. It is synchronous
// and consistent: the answer reflects every record processed before it.
func (s *Service) GetDeployContext(service, namespace string) Context {
	q := contextQuery{service: service, namespace: namespace, reply: make(chan Context, 1)}
	select {
	case s.queries <- q:
		return <-q.reply
	case <-s.stop:
		return Context{Service: service, Namespace: namespace}
	}
}

// GetStats reports node/relationship counts and the strongest failure edges.
func (s *Service) GetStats() Stats {
	q := statsQuery{reply: make(chan Stats, 1)}
	select {
	case s.stats <- q:
		return <-q.reply
	case <-s.stop:
		return Stats{}
	}
}

func (s *Service) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(decayInterval)
	defer ticker.Stop()

	for {
		select {
		case outcome := <-s.records:
			s.ingestAndSnapshot(outcome)
		case q := <-s.queries:
			q.reply <- s.queryContext(q.service, q.namespace)
		case q := <-s.stats:
			q.reply <- s.queryStats()
		case <-ticker.C:
			s.g.DecayAll(decayFactor)
			s.publishSize()
			s.log.Debug().Int("nodes", s.g.NodeCount()).Msg("graph decay applied")
		case <-s.stop:
			return
		}
	}
}

func (s *Service) ingestAndSnapshot(outcome DeployOutcome) {
	if err := ingest(s.g, outcome, s.ids.New()); err != nil {
		// The ingestor validates before touching the graph, so a failure
		// here means the previous graph is intact.
		s.log.Warn().Err(err).Str("service", outcome.Service).Msg("deploy record rejected")
		return
	}
	s.publishSize()
	blob, err := encodeSnapshot(s.g)
	if err != nil {
		s.log.Warn().Err(err).Msg("graph snapshot encoding failed")
		return
	}
	s.cache.PutGraphSnapshot(blob)
}

func (s *Service) publishSize() {
	telemetry.SetGraphSize(s.g.NodeCount(), s.g.RelationshipCount())
}
