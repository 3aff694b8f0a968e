package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arnaldoapp/gridtrust/internal/decision"
	"github.com/arnaldoapp/gridtrust/internal/market"
	"github.com/arnaldoapp/gridtrust/internal/resolver"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

const (
	defaultInstance  = "gridtrust"
	defaultRedisURL  = "redis://localhost:6379"
	defaultCSVPath   = "agreements.csv"
	defaultWorldSide = 100
)

// Params represents the run parameters file
type Params struct {
	StopAt      uint64 `yaml:"stop.at"`
	WorldWidth  int    `yaml:"world.width"`
	WorldHeight int    `yaml:"world.height"`

	Producers []ProducerSeed `yaml:"producers_data"`
	Consumers []ConsumerSeed `yaml:"consumers_data"`

	Market *MarketConfig `yaml:"market,omitempty"`
	Sync   *SyncConfig   `yaml:"sync,omitempty"`
	Ledger *LedgerConfig `yaml:"ledger,omitempty"`
}

// ProducerSeed is the initial state of one producer
type ProducerSeed struct {
	ID              int      `yaml:"id"`
	Name            string   `yaml:"name"`
	Rank            int      `yaml:"rank"`
	UnitCost        float64  `yaml:"unit_cost"`
	InitialCapacity float64  `yaml:"initial_capacity"`
	FailureProb     *float64 `yaml:"failure_prob,omitempty"` // Overrides market.failure_prob
	Alpha           *float64 `yaml:"alpha,omitempty"`
	Beta            *float64 `yaml:"beta,omitempty"`
	Trust           *float64 `yaml:"trust,omitempty"` // Starting trust of every consumer toward this producer
	Location        *Point   `yaml:"location,omitempty"`
}

// ConsumerSeed is the initial state of one consumer
type ConsumerSeed struct {
	ID       int     `yaml:"id"`
	Name     string  `yaml:"name"`
	Rank     int     `yaml:"rank"`
	Budget   float64 `yaml:"budget"`
	Usage    float64 `yaml:"usage"`
	Location *Point  `yaml:"location,omitempty"`
}

// Point is a grid location. Placement does not influence the market; it is
// only checked against the world bounds.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// MarketConfig tunes the decision and trust rules
type MarketConfig struct {
	Mode             decision.Mode `yaml:"mode,omitempty"`              // "individual" (default) or "collective"
	TrustCutoff      *float64      `yaml:"trust_cutoff,omitempty"`      // Default 0.5
	SelfishThreshold *float64      `yaml:"selfish_threshold,omitempty"` // Default -4
	Epsilon          *float64      `yaml:"epsilon,omitempty"`           // Default 0.001
	Seed             *int64        `yaml:"seed,omitempty"`              // Failure draws; default 1

	FailureProb  *float64 `yaml:"failure_prob,omitempty"` // Default 0.15
	Alpha        *float64 `yaml:"alpha,omitempty"`        // Default 0.01
	Beta         *float64 `yaml:"beta,omitempty"`         // Default 0.08
	InitialTrust *float64 `yaml:"initial_trust,omitempty"`
}

// SyncConfig describes how ranks meet each tick
type SyncConfig struct {
	WorldSize      int           `yaml:"world_size,omitempty"` // Default: highest seeded rank + 1
	Instance       string        `yaml:"instance,omitempty"`
	RedisURL       string        `yaml:"redis_url,omitempty"`
	PollInterval   time.Duration `yaml:"poll_interval,omitempty"`
	BarrierTimeout time.Duration `yaml:"barrier_timeout,omitempty"`
	KeyTTL         time.Duration `yaml:"key_ttl,omitempty"`
}

// LedgerConfig controls the agreement log and trust checkpoints
type LedgerConfig struct {
	CSVPath         string `yaml:"csv_path,omitempty"`
	CheckpointEvery int    `yaml:"checkpoint_every,omitempty"` // 0 = only at the end of the run
}

// Validate performs strict validation on the parameters and fills defaults
func (p *Params) Validate() error {
	if p.StopAt < 1 {
		return invalid("stop.at must be >= 1, got %d", p.StopAt)
	}

	if p.WorldWidth == 0 {
		p.WorldWidth = defaultWorldSide
	}
	if p.WorldHeight == 0 {
		p.WorldHeight = defaultWorldSide
	}
	if p.WorldWidth < 0 || p.WorldHeight < 0 {
		return invalid("world bounds must be positive, got %dx%d", p.WorldWidth, p.WorldHeight)
	}

	if p.Market == nil {
		p.Market = &MarketConfig{}
	}
	if err := p.Market.validate(); err != nil {
		return err
	}

	maxRank := 0
	producerIDs := make(map[blackboard.AgentID]bool)
	for i, seed := range p.Producers {
		if err := seed.validate(p); err != nil {
			return fmt.Errorf("producers_data[%d]: %w", i, err)
		}
		id := seed.AgentID()
		if producerIDs[id] {
			return invalid("producers_data[%d]: duplicate producer id %d on rank %d", i, seed.ID, seed.Rank)
		}
		producerIDs[id] = true
		maxRank = max(maxRank, seed.Rank)
	}

	consumerIDs := make(map[blackboard.AgentID]bool)
	for i, seed := range p.Consumers {
		if err := seed.validate(p); err != nil {
			return fmt.Errorf("consumers_data[%d]: %w", i, err)
		}
		id := seed.AgentID()
		if consumerIDs[id] {
			return invalid("consumers_data[%d]: duplicate consumer id %d on rank %d", i, seed.ID, seed.Rank)
		}
		consumerIDs[id] = true
		maxRank = max(maxRank, seed.Rank)
	}

	if p.Sync == nil {
		p.Sync = &SyncConfig{}
	}
	if p.Sync.WorldSize == 0 {
		p.Sync.WorldSize = maxRank + 1
	}
	if p.Sync.WorldSize <= maxRank {
		return invalid("sync.world_size %d is too small for rank %d", p.Sync.WorldSize, maxRank)
	}
	if p.Sync.Instance == "" {
		p.Sync.Instance = defaultInstance
	}
	if err := ValidateInstanceName(p.Sync.Instance); err != nil {
		return invalid("sync.instance: %v", err)
	}
	if p.Sync.RedisURL == "" {
		p.Sync.RedisURL = defaultRedisURL
	}
	if p.Sync.PollInterval < 0 || p.Sync.BarrierTimeout < 0 || p.Sync.KeyTTL < 0 {
		return invalid("sync durations must not be negative")
	}

	if p.Ledger == nil {
		p.Ledger = &LedgerConfig{}
	}
	if p.Ledger.CSVPath == "" {
		p.Ledger.CSVPath = defaultCSVPath
	}
	if p.Ledger.CheckpointEvery < 0 {
		return invalid("ledger.checkpoint_every must be >= 0 (0 = end of run only), got %d", p.Ledger.CheckpointEvery)
	}

	return nil
}

func (m *MarketConfig) validate() error {
	if m.Mode == "" {
		m.Mode = decision.ModeIndividual
	}
	if err := m.Mode.Validate(); err != nil {
		return invalid("market.mode: %v", err)
	}

	defaultFloat(&m.TrustCutoff, decision.DefaultTrustCutoff)
	defaultFloat(&m.SelfishThreshold, resolver.DefaultSelfishThreshold)
	defaultFloat(&m.Epsilon, decision.DefaultEpsilon)
	defaultFloat(&m.FailureProb, market.DefaultFailureProb)
	defaultFloat(&m.Alpha, market.DefaultAlpha)
	defaultFloat(&m.Beta, market.DefaultBeta)
	defaultFloat(&m.InitialTrust, market.DefaultInitialTrust)
	if m.Seed == nil {
		seed := int64(1)
		m.Seed = &seed
	}

	if err := m.DecisionParams().Validate(); err != nil {
		return invalid("market: %v", err)
	}
	if *m.InitialTrust < 0 || *m.InitialTrust > 1 {
		return invalid("market.initial_trust must be in [0,1], got %v", *m.InitialTrust)
	}
	return nil
}

// DecisionParams returns the decision rule tuning.
func (m *MarketConfig) DecisionParams() decision.Params {
	return decision.Params{TrustCutoff: *m.TrustCutoff, Epsilon: *m.Epsilon}
}

func (s ProducerSeed) validate(p *Params) error {
	if s.ID < 0 || s.Rank < 0 {
		return invalid("producer '%s': id and rank must be >= 0", s.Name)
	}
	if err := p.checkLocation(s.Location); err != nil {
		return fmt.Errorf("producer '%s': %w", s.Name, err)
	}
	// Range checks on the remaining fields are those of the producer itself.
	return p.ProducerParams(s).Validate()
}

func (s ConsumerSeed) validate(p *Params) error {
	if s.ID < 0 || s.Rank < 0 {
		return invalid("consumer '%s': id and rank must be >= 0", s.Name)
	}
	if s.Budget < 0 {
		return invalid("consumer '%s': budget must be >= 0, got %v", s.Name, s.Budget)
	}
	if s.Usage < 0 {
		return invalid("consumer '%s': usage must be >= 0, got %v", s.Name, s.Usage)
	}
	return p.checkLocation(s.Location)
}

func (p *Params) checkLocation(pt *Point) error {
	if pt == nil {
		return nil
	}
	if pt.X < 0 || pt.X >= p.WorldWidth || pt.Y < 0 || pt.Y >= p.WorldHeight {
		return invalid("location (%d,%d) outside world %dx%d", pt.X, pt.Y, p.WorldWidth, p.WorldHeight)
	}
	return nil
}

// AgentID returns the producer's global id.
func (s ProducerSeed) AgentID() blackboard.AgentID {
	return blackboard.AgentID{LocalID: s.ID, Kind: blackboard.KindProducer, Rank: s.Rank}
}

// AgentID returns the consumer's global id.
func (s ConsumerSeed) AgentID() blackboard.AgentID {
	return blackboard.AgentID{LocalID: s.ID, Kind: blackboard.KindConsumer, Rank: s.Rank}
}

// ProducerParams resolves a seed against the market-wide defaults.
// Validate must have run first.
func (p *Params) ProducerParams(s ProducerSeed) market.ProducerParams {
	return market.ProducerParams{
		ID:          s.AgentID(),
		Name:        s.Name,
		UnitCost:    s.UnitCost,
		Capacity:    s.InitialCapacity,
		TrustLevel:  pick(s.Trust, *p.Market.InitialTrust),
		Alpha:       pick(s.Alpha, *p.Market.Alpha),
		Beta:        pick(s.Beta, *p.Market.Beta),
		FailureProb: pick(s.FailureProb, *p.Market.FailureProb),
	}
}

// TrustTerms returns the lookup every rank uses to start new mirrors.
// Unknown producers get the market-wide defaults.
func (p *Params) TrustTerms() market.TermsFunc {
	terms := make(map[blackboard.AgentID]market.TrustTerms, len(p.Producers))
	for _, s := range p.Producers {
		pp := p.ProducerParams(s)
		terms[pp.ID] = market.TrustTerms{InitialTrust: pp.TrustLevel, Alpha: pp.Alpha, Beta: pp.Beta}
	}
	fallback := market.TrustTerms{
		InitialTrust: *p.Market.InitialTrust,
		Alpha:        *p.Market.Alpha,
		Beta:         *p.Market.Beta,
	}
	return func(id blackboard.AgentID) market.TrustTerms {
		if t, ok := terms[id]; ok {
			return t
		}
		return fallback
	}
}

// ProducersOn returns the seeds owned by rank.
func (p *Params) ProducersOn(rank int) []ProducerSeed {
	var out []ProducerSeed
	for _, s := range p.Producers {
		if s.Rank == rank {
			out = append(out, s)
		}
	}
	return out
}

// ConsumersOn returns the seeds owned by rank.
func (p *Params) ConsumersOn(rank int) []ConsumerSeed {
	var out []ConsumerSeed
	for _, s := range p.Consumers {
		if s.Rank == rank {
			out = append(out, s)
		}
	}
	return out
}

// Load reads and validates a params file from the specified path
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params: %w", err)
	}

	var params Params
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	return &params, nil
}

// MaxInstanceNameLength bounds the instance name, which prefixes every Redis key
const MaxInstanceNameLength = 63

// instanceNamePattern: lowercase alphanumeric, hyphens allowed but not at start/end
var instanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstanceName checks that name is usable as a key namespace.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}
	if !instanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", market.ErrInvalidParameter, fmt.Sprintf(format, a...))
}

func defaultFloat(v **float64, def float64) {
	if *v == nil {
		d := def
		*v = &d
	}
}

func pick(override *float64, def float64) float64 {
	if override != nil {
		return *override
	}
	return def
}
