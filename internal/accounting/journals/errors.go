package journals

import (
	"errors"
	"fmt"

	ledger "github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/shared"
)

// mapLedgerError classifies ledger rule violations for HTTP callers.
func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrJournalNotFound):
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	case errors.Is(err, ledger.ErrSourceAlreadyLinked):
		return fmt.Errorf("%w: %v", shared.ErrDuplicate, err)
	case errors.Is(err, ledger.ErrInvalidStatus),
		errors.Is(err, ledger.ErrInvalidPeriod),
		errors.Is(err, ledger.ErrPeriodLocked),
		errors.Is(err, ledger.ErrDateOutOfRange):
		return shared.Invalid(err)
	default:
		return err
	}
}
