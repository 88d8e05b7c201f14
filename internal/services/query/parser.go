package query

import (
	"context"
	"time"

	"EMSpark/internal/domain/models"
	"EMSpark/pkg/logger"
)

// Config is the static configuration of a Parser.
type Config struct {
	DefaultMarket  models.Market
	DefaultStat    models.Stat
	EnabledMarkets []models.Market
	Location       *time.Location
}

// DefaultConfig answers in DAM, TWAP and Indian time.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	return Config{
		DefaultMarket:  models.MarketDAM,
		DefaultStat:    models.StatTWAP,
		EnabledMarkets: models.AllMarkets,
		Location:       loc,
	}
}

// Option customises a Parser.
type Option func(*Parser)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// Parser turns free text into query specs. It holds no mutable state and
// is safe for concurrent use.
type Parser struct {
	cfg     Config
	enabled map[models.Market]bool
	now     func() time.Time
}

func NewParser(cfg Config, opts ...Option) *Parser {
	def := DefaultConfig()
	if cfg.DefaultMarket == "" {
		cfg.DefaultMarket = def.DefaultMarket
	}
	if cfg.DefaultStat == "" {
		cfg.DefaultStat = def.DefaultStat
	}
	if len(cfg.EnabledMarkets) == 0 {
		cfg.EnabledMarkets = def.EnabledMarkets
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	p := &Parser{
		cfg:     cfg,
		enabled: make(map[models.Market]bool, len(cfg.EnabledMarkets)),
		now:     time.Now,
	}
	for _, m := range cfg.EnabledMarkets {
		p.enabled[m] = true
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Parser) Config() Config { return p.cfg }

// Today is the current calendar day in the configured zone.
func (p *Parser) Today() models.Date { return p.today() }

func (p *Parser) today() models.Date {
	return models.DateOf(p.now().In(p.cfg.Location))
}

// Enabled reports whether the market may be queried.
func (p *Parser) Enabled(m models.Market) bool { return p.enabled[m] }

// Parse resolves the query against the market it names. An empty result
// means the dates could not be resolved.
func (p *Parser) Parse(raw string) []models.QuerySpec {
	text := Normalize(raw)
	market := ClassifyMarket(text, p.cfg.DefaultMarket)
	if !p.enabled[market] {
		market = p.cfg.DefaultMarket
	}
	return p.parse(text, market)
}

// ParseForMarket resolves the query for a caller-chosen market, used to
// ask the same question of several markets.
func (p *Parser) ParseForMarket(raw string, market models.Market) []models.QuerySpec {
	return p.parse(Normalize(raw), market)
}

func (p *Parser) parse(text string, market models.Market) []models.QuerySpec {
	periods := p.ParsePeriods(text)
	if len(periods) == 0 {
		start, end, ok := p.ParseSingleRange(text)
		if !ok {
			return nil
		}
		periods = []Period{{Start: start, End: end}}
	}
	stat := ClassifyStat(text, p.cfg.DefaultStat)
	groups := ParseTimeGroups(text)
	ex := p.ParseExclusion(text)
	return Dedupe(Build(market, stat, periods, groups, ex))
}

// FallbackClassifier is consulted when deterministic parsing finds nothing.
type FallbackClassifier interface {
	Classify(ctx context.Context, raw string, today models.Date) ([]models.QuerySpec, error)
}

// Source tells which stage produced a resolution.
type Source string

const (
	SourceRules    Source = "rules"
	SourceFallback Source = "fallback"
	SourceNone     Source = "none"
)

// ParseMetrics receives one observation per resolution.
type ParseMetrics interface {
	RecordParse(source string, specs int)
	RecordFallback(ok bool, d time.Duration)
}

// Resolver runs the Parser first and the fallback only on an empty result.
type Resolver struct {
	parser   *Parser
	fallback FallbackClassifier
	metrics  ParseMetrics
	log      *logger.Logger
}

func NewResolver(parser *Parser, fallback FallbackClassifier, metrics ParseMetrics, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{parser: parser, fallback: fallback, metrics: metrics, log: log}
}

func (r *Resolver) Parser() *Parser { return r.parser }

// Resolve never fails: fallback errors are logged and yield SourceNone.
func (r *Resolver) Resolve(ctx context.Context, raw string) ([]models.QuerySpec, Source) {
	specs, src := r.resolve(ctx, raw)
	if r.metrics != nil {
		r.metrics.RecordParse(string(src), len(specs))
	}
	return specs, src
}

func (r *Resolver) resolve(ctx context.Context, raw string) ([]models.QuerySpec, Source) {
	if specs := r.parser.Parse(raw); len(specs) > 0 {
		return specs, SourceRules
	}
	if r.fallback == nil {
		return nil, SourceNone
	}

	start := time.Now()
	specs, err := r.fallback.Classify(ctx, raw, r.parser.Today())
	if r.metrics != nil {
		r.metrics.RecordFallback(err == nil, time.Since(start))
	}
	if err != nil {
		r.log.Warn("Fallback classifier failed",
			logger.String("query", raw),
			logger.Error(err),
		)
		return nil, SourceNone
	}
	kept := make([]models.QuerySpec, 0, len(specs))
	for _, s := range specs {
		if r.parser.Enabled(s.Market()) {
			kept = append(kept, s)
		}
	}
	specs = Dedupe(kept)
	if len(specs) == 0 {
		return nil, SourceNone
	}
	return specs, SourceFallback
}
