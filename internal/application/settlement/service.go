package settlement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/logger"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSourceUnavailable is returned when every source failed and nothing at
// all could be read
var ErrSourceUnavailable = shared.NewDomainError("SOURCE_UNAVAILABLE", "No transaction source could be read")

// DirectoryProvider supplies the party directory as id -> display name
type DirectoryProvider interface {
	PartyNames(ctx context.Context) (map[string]string, error)
}

// OpeningBalanceProvider supplies opening balances. Parties missing from the
// returned map open at zero.
type OpeningBalanceProvider interface {
	OpeningBalances(ctx context.Context, parties []settlement.PartyID) (map[settlement.PartyID]decimal.Decimal, error)
}

// Sources are the three transaction streams
type Sources struct {
	Receipts  PageProvider[settlement.Movement]
	WriteOffs PageProvider[settlement.Movement]
	Payments  PageProvider[settlement.Payment]
}

// ServiceConfig holds paging limits and ledger presentation defaults
type ServiceConfig struct {
	PageSize         int
	MaxPages         int
	PageTimeout      time.Duration
	IncludeWriteOffs bool
	BatchMovements   bool
}

// Service computes party summaries and per-party settlement ledgers
type Service struct {
	sources   Sources
	config    ServiceConfig
	logger    *zap.Logger
	directory DirectoryProvider
	balances  OpeningBalanceProvider
	metrics   *telemetry.SettlementMetrics
}

// NewService creates a new Service
func NewService(sources Sources, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sources: sources,
		config:  cfg,
		logger:  logger,
	}
}

// SetDirectoryProvider enables name -> id merging of parties
func (s *Service) SetDirectoryProvider(d DirectoryProvider) {
	s.directory = d
}

// SetOpeningBalanceProvider sets where opening balances come from
func (s *Service) SetOpeningBalanceProvider(p OpeningBalanceProvider) {
	s.balances = p
}

// SetSettlementMetrics sets the metrics recorder
func (s *Service) SetSettlementMetrics(m *telemetry.SettlementMetrics) {
	s.metrics = m
}

// fetched holds the outcome of one concurrent read of all sources.
// sourceReports describe the pages as read, before any local filtering.
type fetched struct {
	receipts      FetchResult[settlement.Movement]
	writeOffs     FetchResult[settlement.Movement]
	payments      FetchResult[settlement.Payment]
	sourceReports []SourceReport
}

func (f *fetched) movements() []settlement.Movement {
	out := make([]settlement.Movement, 0, len(f.receipts.Items)+len(f.writeOffs.Items))
	out = append(out, f.receipts.Items...)
	return append(out, f.writeOffs.Items...)
}

func (f *fetched) status() FetchStatus {
	if f.receipts.Failed() || f.writeOffs.Failed() || f.payments.Failed() {
		return FetchStatusPartial
	}
	return FetchStatusComplete
}

func (f *fetched) issues() settlement.Issues {
	issues := make(settlement.Issues, 0)
	issues = append(issues, f.receipts.Issues...)
	issues = append(issues, f.writeOffs.Issues...)
	return append(issues, f.payments.Issues...)
}

func (f *fetched) reports() []SourceReport {
	return f.sourceReports
}

func (f *fetched) empty() bool {
	return len(f.receipts.Items)+len(f.writeOffs.Items)+len(f.payments.Items) == 0
}

func (f *fetched) allFailed() bool {
	return f.receipts.Failed() && f.writeOffs.Failed() && f.payments.Failed()
}

func (s *Service) adapterOptions() []AdapterOption {
	return []AdapterOption{
		WithPageSize(s.config.PageSize),
		WithMaxPages(s.config.MaxPages),
		WithPageTimeout(s.config.PageTimeout),
		WithAdapterLogger(s.logger),
		WithAdapterMetrics(s.metrics),
	}
}

// fetchAll reads the three sources concurrently. Only cancellation of ctx,
// or every source failing with nothing read, is an error.
//
// Search never reaches a source: it matches the resolved display name, and a
// record without a party name can still belong to a matching party.
func (s *Service) fetchAll(ctx context.Context, filter Filter) (*fetched, error) {
	filter.Search = ""
	opts := s.adapterOptions()
	receipts := NewSourceAdapter(settlement.SourceKindReceipts, s.sources.Receipts, opts...)
	writeOffs := NewSourceAdapter(settlement.SourceKindWriteOffs, s.sources.WriteOffs, opts...)
	payments := NewSourceAdapter(settlement.SourceKindPayments, s.sources.Payments, opts...)

	var out fetched
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := receipts.FetchAll(gctx, filter)
		out.receipts = r
		return err
	})
	g.Go(func() error {
		r, err := writeOffs.FetchAll(gctx, filter)
		out.writeOffs = r
		return err
	})
	g.Go(func() error {
		r, err := payments.FetchAll(gctx, filter)
		out.payments = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if out.allFailed() && out.empty() {
		return nil, ErrSourceUnavailable
	}

	out.sourceReports = []SourceReport{reportOf(out.receipts), reportOf(out.writeOffs), reportOf(out.payments)}

	stampKinds(out.receipts.Items, settlement.MovementKindReceipt)
	stampKinds(out.writeOffs.Items, settlement.MovementKindWriteOff)
	out.receipts.Items = inRange(out.receipts.Items, filter, settlement.Movement.Time)
	out.writeOffs.Items = inRange(out.writeOffs.Items, filter, settlement.Movement.Time)
	out.payments.Items = inRange(out.payments.Items, filter, settlement.Payment.Time)
	return &out, nil
}

// stampKinds fills in the kind of movements whose source left it empty
func stampKinds(movements []settlement.Movement, kind settlement.MovementKind) {
	for i := range movements {
		if movements[i].Kind == "" {
			movements[i].Kind = kind
		}
	}
}

// inRange drops records outside the filter's date range. Records with an
// unparseable timestamp are kept so validation can report them.
func inRange[T any](items []T, filter Filter, timeOf func(T) (time.Time, error)) []T {
	if filter.From == nil && filter.To == nil {
		return items
	}
	out := items[:0]
	for _, item := range items {
		t, err := timeOf(item)
		if err != nil || filter.Contains(t) {
			out = append(out, item)
		}
	}
	return out
}

// resolver builds the party resolver for one call. A directory that cannot be
// loaded leaves ids and names unmerged.
func (s *Service) resolver(ctx context.Context) *settlement.Resolver {
	if s.directory == nil {
		return settlement.NewResolver()
	}
	names, err := s.directory.PartyNames(ctx)
	if err != nil {
		logger.WithLogger(ctx, s.logger).Warn("Party directory unavailable, names stay unmerged", zap.Error(err))
		return settlement.NewResolver()
	}
	return settlement.NewResolver(settlement.WithDirectory(settlement.NewStaticDirectory(names)))
}

func (s *Service) openingBalances(ctx context.Context, parties []settlement.PartyID) (map[settlement.PartyID]decimal.Decimal, *settlement.Issue) {
	if s.balances == nil || len(parties) == 0 {
		return map[settlement.PartyID]decimal.Decimal{}, nil
	}
	balances, err := s.balances.OpeningBalances(ctx, parties)
	if err != nil {
		logger.WithLogger(ctx, s.logger).Warn("Opening balances unavailable, using zero", zap.Error(err))
		issue := settlement.NewIssue(settlement.IssueSourceUnavailable, settlement.SourceKindOpeningBalances, "",
			fmt.Sprintf("opening balances unavailable: %v", err))
		return map[settlement.PartyID]decimal.Decimal{}, &issue
	}
	if balances == nil {
		balances = map[settlement.PartyID]decimal.Decimal{}
	}
	return balances, nil
}

// Summaries fetches every source and aggregates per party.
// Parties are sorted by display name with the unknown bucket last.
func (s *Service) Summaries(ctx context.Context, filter Filter) (*SummaryResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "summaries")
	defer span.End()
	log := logger.WithLogger(ctx, s.logger)

	data, err := s.fetchAll(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	agg := settlement.Aggregate(s.resolver(ctx), data.movements(), data.payments.Items)

	parties := make([]settlement.PartyID, 0, len(agg.Order))
	for _, party := range agg.Order {
		if !party.IsUnknown() {
			parties = append(parties, party)
		}
	}

	result := &SummaryResult{
		Parties: make([]PartySummary, 0, len(agg.Order)),
		Status:  data.status(),
		Sources: data.reports(),
		Issues:  data.issues(),
	}

	balances, issue := s.openingBalances(ctx, parties)
	if issue != nil {
		result.Issues = append(result.Issues, *issue)
		result.Status = FetchStatusPartial
	}
	result.Issues = append(result.Issues, agg.Issues...)

	for _, party := range agg.Order {
		summary := ToPartySummary(agg.Accumulators[party], balances[party])
		if !matchesParty(summary, filter) {
			continue
		}
		result.Parties = append(result.Parties, summary)
		result.Totals.add(summary)
	}
	sortSummaries(result.Parties)

	log.Info("Settlement summaries computed",
		zap.Int("parties", len(result.Parties)),
		zap.Int("accepted", agg.Accepted),
		zap.Int("rejected", agg.Rejected),
		zap.Int("issues", len(result.Issues)),
		zap.String("status", string(result.Status)),
	)
	s.metrics.RecordIssues(ctx, "summaries", result.Issues)
	s.metrics.RecordParties(ctx, len(result.Parties))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrIssues, len(result.Issues),
		telemetry.SpanAttrStatus, string(result.Status),
	)
	telemetry.SetOK(span)
	return result, nil
}

// matchesParty applies the party and search filters to a computed summary
func matchesParty(s PartySummary, filter Filter) bool {
	if filter.PartyID != "" && s.Party != settlement.ParsePartyID(filter.PartyID) {
		return false
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		return strings.Contains(strings.ToLower(s.DisplayName), search) ||
			strings.Contains(strings.ToLower(s.Party.Value), search)
	}
	return true
}

func sortSummaries(parties []PartySummary) {
	sort.SliceStable(parties, func(i, j int) bool {
		a, b := parties[i], parties[j]
		if a.Party.IsUnknown() != b.Party.IsUnknown() {
			return b.Party.IsUnknown()
		}
		an, bn := strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)
		if an != bn {
			return an < bn
		}
		return a.Party.String() < b.Party.String()
	})
}

// PartyDetail builds the settlement view of one party: its summary, its
// receipt and write-off batches, and its ledger.
func (s *Service) PartyDetail(ctx context.Context, party settlement.PartyID, filter Filter) (*PartyDetail, error) {
	ctx = logger.WithPartyID(ctx, party.String())
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "party_detail",
		telemetry.WithAttribute(telemetry.SpanAttrPartyID, party.String()),
	)
	defer span.End()
	log := logger.WithLogger(ctx, s.logger)

	// Sources can only filter by a real id, and only when no record can
	// reach the party through a name lookup.
	sourceFilter := filter
	sourceFilter.PartyID = ""
	if party.Kind == settlement.PartyIDKindID && s.directory == nil {
		sourceFilter.PartyID = party.Value
	}

	data, err := s.fetchAll(ctx, sourceFilter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resolver := s.resolver(ctx)
	movements := make([]settlement.Movement, 0)
	for _, m := range data.movements() {
		if resolver.ResolveMovement(m).Party == party {
			movements = append(movements, m)
		}
	}
	payments := make([]settlement.Payment, 0)
	for _, p := range data.payments.Items {
		if resolver.ResolvePayment(p).Party == party {
			payments = append(payments, p)
		}
	}

	detail := &PartyDetail{
		Party:           party,
		ReceiptBatches:  make([]settlement.Batch, 0),
		WriteOffBatches: make([]settlement.Batch, 0),
		Status:          data.status(),
		Sources:         data.reports(),
		Issues:          data.issues(),
	}

	opening := decimal.Zero
	if !party.IsUnknown() {
		balances, issue := s.openingBalances(ctx, []settlement.PartyID{party})
		if issue != nil {
			detail.Issues = append(detail.Issues, *issue)
			detail.Status = FetchStatusPartial
		}
		if b, ok := balances[party]; ok {
			opening = b
		}
	}

	agg := settlement.Aggregate(resolver, movements, payments)
	acc, ok := agg.Get(party)
	if !ok {
		acc = settlement.Accumulator{Party: party}
	}
	detail.Summary = ToPartySummary(acc, opening)

	valid := make([]settlement.Movement, 0, len(movements))
	for _, m := range movements {
		if settlement.CheckMovement(m, settlement.SourceForKind(m.Kind)) == nil {
			valid = append(valid, m)
		}
	}
	batches, batchIssues := settlement.GroupBatches(valid)
	for _, b := range batches {
		if b.Kind == settlement.MovementKindWriteOff {
			detail.WriteOffBatches = append(detail.WriteOffBatches, b)
		} else {
			detail.ReceiptBatches = append(detail.ReceiptBatches, b)
		}
	}

	detail.Ledger = settlement.BuildLedger(party, payments, movements, opening, s.ledgerOptions()...)
	detail.Issues = mergeIssues(detail.Issues, agg.Issues, batchIssues, detail.Ledger.Issues)

	log.Info("Party ledger built",
		zap.Int("lines", len(detail.Ledger.Lines)),
		zap.Int("receipt_batches", len(detail.ReceiptBatches)),
		zap.Int("write_off_batches", len(detail.WriteOffBatches)),
		zap.Int("issues", len(detail.Issues)),
		zap.String("status", string(detail.Status)),
	)
	s.metrics.RecordIssues(ctx, "party_detail", detail.Issues)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrIssues, len(detail.Issues),
		telemetry.SpanAttrStatus, string(detail.Status),
	)
	telemetry.SetOK(span)
	return detail, nil
}

func (s *Service) ledgerOptions() []settlement.LedgerOption {
	opts := make([]settlement.LedgerOption, 0, 2)
	if s.config.IncludeWriteOffs {
		opts = append(opts, settlement.WithWriteOffs())
	}
	if s.config.BatchMovements {
		opts = append(opts, settlement.WithBatchedMovements())
	}
	return opts
}

// mergeIssues concatenates issue lists, keeping the first of any issue
// reported twice for the same record
func mergeIssues(lists ...settlement.Issues) settlement.Issues {
	type key struct {
		kind   settlement.IssueKind
		source settlement.SourceKind
		record string
		reason string
	}
	seen := make(map[key]bool)
	out := make(settlement.Issues, 0)
	for _, list := range lists {
		for _, issue := range list {
			k := key{issue.Kind, issue.Source, issue.RecordID, issue.Reason}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, issue)
		}
	}
	return out
}
