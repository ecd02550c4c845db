package quota

import (
	"errors"
	"fmt"
)

// Period names the quota window that was exhausted.
type Period string

const (
	PeriodDaily   Period = "Daily"
	PeriodMonthly Period = "Monthly"
)

var (
	ErrDailyQuotaExceeded   = errors.New("daily quota exceeded")
	ErrMonthlyQuotaExceeded = errors.New("monthly quota exceeded")
)

// QuotaError reports which cap was hit and the usage at the time of the check.
type QuotaError struct {
	Period Period
	Used   int
	Limit  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded (%d/%d)", e.Period, e.Used, e.Limit)
}

// Unwrap allows errors.Is against ErrDailyQuotaExceeded and ErrMonthlyQuotaExceeded.
func (e *QuotaError) Unwrap() error {
	if e.Period == PeriodMonthly {
		return ErrMonthlyQuotaExceeded
	}
	return ErrDailyQuotaExceeded
}

// IsExceeded reports whether err is a quota exhaustion of either period.
func IsExceeded(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
