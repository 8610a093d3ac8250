package integration

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/accounting/accounts"
	"github.com/rawdatain/backoffice/internal/accounting/journals"
	"github.com/rawdatain/backoffice/internal/accounting/mappings"
	"github.com/rawdatain/backoffice/internal/accounting/periods"
	ledger "github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Source types posted by the back office.
const (
	SourceManualExpense = "manualExpense"
	SourceSegmentPeriod = "segmentPeriod"
	SourceManualProfit  = "manualProfit"
	SourceReversal      = "reversal"
)

// sourceNamespace scopes deterministic journal source ids.
var sourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("backoffice/postings"))

// VoucherID identifies the journal entry created for a posting.
type VoucherID string

// PostingRequest describes one finalized monetary event. DebitAccount and CreditAccount are
// account mapping keys of the source type or chart of accounts codes.
type PostingRequest struct {
	SourceType    string
	SourceID      string
	Description   string
	Amount        decimal.Decimal
	Currency      apportion.Currency
	Date          time.Time
	DebitAccount  string
	CreditAccount string
}

// Ledger exposes journal posting operations required by the adapter.
type Ledger interface {
	PostJournal(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
	EntryForSource(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error)
	ReverseJournal(ctx context.Context, input journals.ReverseInput) (journals.JournalEntry, error)
	Get(ctx context.Context, id int64) (journals.JournalEntry, error)
}

// PeriodFinder provides period lookups.
type PeriodFinder interface {
	FindOpenPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error)
}

// AccountMappingRepository provides mapping lookups.
type AccountMappingRepository interface {
	Get(ctx context.Context, module, key string) (mappings.AccountMapping, error)
}

// AccountFinder resolves chart of accounts codes.
type AccountFinder interface {
	FindByCode(ctx context.Context, code string) (accounts.Account, error)
}

// Recorder counts posting outcomes.
type Recorder interface {
	ObservePosting(sourceType, outcome string)
}

// Poster turns monetary events into balanced two-line journals. It never writes accounting
// rows itself; all writes go through the ledger.
type Poster struct {
	ledger   Ledger
	periods  PeriodFinder
	mappings AccountMappingRepository
	accounts AccountFinder
	recorder Recorder
	logger   *slog.Logger
}

// NewPoster constructs the posting adapter.
func NewPoster(ledger Ledger, periods PeriodFinder, mappings AccountMappingRepository, accounts AccountFinder, recorder Recorder, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{ledger: ledger, periods: periods, mappings: mappings, accounts: accounts, recorder: recorder, logger: logger}
}

// SourceUUID derives the ledger source id of a business record.
func SourceUUID(sourceType, sourceID string) uuid.UUID {
	return uuid.NewSHA1(sourceNamespace, []byte(sourceType+":"+sourceID))
}

// Post resolves accounts and the open period for req.Date and posts the journal. Posting the
// same SourceType/SourceID twice returns the voucher of the first posting.
func (p *Poster) Post(ctx context.Context, req PostingRequest) (VoucherID, error) {
	id, err := p.post(ctx, req)
	p.observe(req.SourceType, err)
	if errors.Is(err, errAlreadyPosted) {
		return id, nil
	}
	if err != nil {
		p.logger.Warn("ledger posting failed",
			slog.String("source_type", req.SourceType),
			slog.String("source_id", req.SourceID),
			slog.Any("error", err))
	}
	return id, err
}

func (p *Poster) post(ctx context.Context, req PostingRequest) (VoucherID, error) {
	fail := func(reason FailureReason, account string, err error) error {
		return &PostingError{Reason: reason, SourceType: req.SourceType, SourceID: req.SourceID, Account: account, Err: err}
	}
	if err := validateRequest(req); err != nil {
		return "", fail(ReasonInvalidRequest, "", err)
	}

	period, err := p.periods.FindOpenPeriodByDate(ctx, req.Date)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidPeriod) {
			return "", fail(ReasonNoOpenPeriod, "", err)
		}
		return "", fail(classify(err), "", err)
	}
	debit, err := p.resolveAccount(ctx, req.SourceType, req.DebitAccount)
	if err != nil {
		return "", fail(accountReason(err), req.DebitAccount, err)
	}
	credit, err := p.resolveAccount(ctx, req.SourceType, req.CreditAccount)
	if err != nil {
		return "", fail(accountReason(err), req.CreditAccount, err)
	}

	amount := req.Amount.Round(2)
	input := journals.PostingInput{
		PeriodID:     period.ID,
		Date:         req.Date,
		Currency:     string(req.Currency),
		SourceModule: req.SourceType,
		SourceID:     SourceUUID(req.SourceType, req.SourceID),
		Memo:         req.Description,
		Lines: []journals.PostingLineInput{
			{AccountID: debit, Debit: amount},
			{AccountID: credit, Credit: amount},
		},
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		input.PostedBy = id.UID
	}

	entry, err := p.ledger.PostJournal(ctx, input)
	if errors.Is(err, ledger.ErrSourceAlreadyLinked) {
		existing, lookupErr := p.ledger.EntryForSource(ctx, input.SourceModule, input.SourceID)
		if lookupErr != nil {
			return "", fail(classify(lookupErr), "", lookupErr)
		}
		return voucherOf(existing), errAlreadyPosted
	}
	if err != nil {
		return "", fail(classify(err), "", err)
	}
	return voucherOf(entry), nil
}

// Reverse posts the mirror image of a voucher. Reversing the same voucher twice returns the
// voucher of the first reversal.
func (p *Poster) Reverse(ctx context.Context, voucher VoucherID, memo string) (VoucherID, error) {
	id, err := p.reverse(ctx, voucher, memo)
	p.observe(SourceReversal, err)
	if errors.Is(err, errAlreadyPosted) {
		return id, nil
	}
	if err != nil {
		p.logger.Warn("ledger reversal failed", slog.String("voucher", string(voucher)), slog.Any("error", err))
	}
	return id, err
}

func (p *Poster) reverse(ctx context.Context, voucher VoucherID, memo string) (VoucherID, error) {
	fail := func(reason FailureReason, err error) error {
		return &PostingError{Reason: reason, SourceType: SourceReversal, SourceID: string(voucher), Err: err}
	}
	entryID, err := strconv.ParseInt(string(voucher), 10, 64)
	if err != nil || entryID <= 0 {
		return "", fail(ReasonInvalidRequest, errors.New("voucher id must be a positive integer"))
	}
	input := journals.ReverseInput{EntryID: entryID, Memo: memo}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		input.ActorID = id.UID
	}
	entry, err := p.ledger.ReverseJournal(ctx, input)
	if errors.Is(err, ledger.ErrSourceAlreadyLinked) {
		original, lookupErr := p.ledger.Get(ctx, entryID)
		if lookupErr != nil {
			return "", fail(classify(lookupErr), lookupErr)
		}
		module, ref := journals.ReversalSource(original)
		existing, lookupErr := p.ledger.EntryForSource(ctx, module, ref)
		if lookupErr != nil {
			return "", fail(classify(lookupErr), lookupErr)
		}
		return voucherOf(existing), errAlreadyPosted
	}
	switch {
	case err == nil:
		return voucherOf(entry), nil
	case errors.Is(err, ledger.ErrInvalidPeriod), errors.Is(err, ledger.ErrPeriodLocked), errors.Is(err, ledger.ErrDateOutOfRange):
		return "", fail(ReasonNoOpenPeriod, err)
	default:
		return "", fail(classify(err), err)
	}
}

// errAlreadyPosted marks an idempotent retry for metrics; Post reports it as success.
var errAlreadyPosted = errors.New("integration: already posted")

func (p *Poster) resolveAccount(ctx context.Context, sourceType, key string) (int64, error) {
	mapping, err := p.mappings.Get(ctx, sourceType, key)
	if err == nil {
		return mapping.AccountID, nil
	}
	if !errors.Is(err, ledger.ErrMappingNotFound) {
		return 0, err
	}
	account, err := p.accounts.FindByCode(ctx, key)
	if err != nil {
		return 0, err
	}
	return account.ID, nil
}

func (p *Poster) observe(sourceType string, err error) {
	if p.recorder == nil {
		return
	}
	outcome := "posted"
	var perr *PostingError
	switch {
	case err == nil:
	case errors.Is(err, errAlreadyPosted):
		outcome = "duplicate"
	case errors.As(err, &perr):
		outcome = string(perr.Reason)
	default:
		outcome = string(ReasonRejected)
	}
	p.recorder.ObservePosting(sourceType, outcome)
}

func validateRequest(req PostingRequest) error {
	switch {
	case strings.TrimSpace(req.SourceType) == "" || strings.TrimSpace(req.SourceID) == "":
		return errors.New("source type and id required")
	case !req.Amount.Round(2).IsPositive():
		return errors.New("amount must be positive")
	case req.Currency == "":
		return apportion.ErrCurrencyRequired
	case req.Date.IsZero():
		return errors.New("date required")
	case req.DebitAccount == "" || req.CreditAccount == "":
		return errors.New("debit and credit accounts required")
	case req.DebitAccount == req.CreditAccount:
		return errors.New("debit and credit accounts must differ")
	}
	return nil
}

func accountReason(err error) FailureReason {
	if errors.Is(err, ledger.ErrAccountNotFound) || errors.Is(err, ledger.ErrMappingNotFound) {
		return ReasonUnknownAccount
	}
	return classify(err)
}

func classify(err error) FailureReason {
	if errors.Is(err, shared.ErrPersistenceUnavailable) {
		return ReasonLedgerUnavailable
	}
	return ReasonRejected
}

func voucherOf(entry journals.JournalEntry) VoucherID {
	return VoucherID(strconv.FormatInt(entry.ID, 10))
}
