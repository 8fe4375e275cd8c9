package billing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// transferTolerance is the reconciliation tolerance for the transfer path:
// a submitted amount may differ from the expected amount by at most one cent.
var transferTolerance = decimal.NewFromFloat(0.01)

// coverageThreshold rounds a partial installment up when the remainder
// reaches 98% of one installment's value (tolerance for rounding noise in
// amounts typed by administrators).
var coverageThreshold = decimal.NewFromFloat(0.98)

// NewInstallmentClaimedError builds the conflict error naming the
// installment numbers that are already claimed by PENDING or APPROVED records.
func NewInstallmentClaimedError(numbers []int) *shared.DomainError {
	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, n := range sorted {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return shared.NewDomainError(ErrCodeInstallmentClaimed,
		fmt.Sprintf("Installments already claimed: [%s]", strings.Join(parts, ", ")))
}

// ValidateSelection checks an installment selection against the student's
// plan and the student's currently active claims. It performs no I/O; the
// caller supplies the claimed numbers it read, and the datastore's uniqueness
// constraint remains the final authority under concurrency.
func ValidateSelection(student *Student, numbers []int, claimed []int) error {
	if len(numbers) == 0 {
		return shared.NewDomainError(ErrCodeInvalidInstallment, "At least one installment must be selected")
	}

	seen := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > student.Installments {
			return shared.NewDomainError(ErrCodeInvalidInstallment,
				fmt.Sprintf("Installment %d is out of range 1..%d", n, student.Installments))
		}
		if seen[n] {
			return shared.NewDomainError(ErrCodeInvalidInstallment,
				fmt.Sprintf("Installment %d selected more than once", n))
		}
		seen[n] = true
	}

	var conflicts []int
	claimedSet := make(map[int]bool, len(claimed))
	for _, n := range claimed {
		claimedSet[n] = true
	}
	for _, n := range numbers {
		if claimedSet[n] {
			conflicts = append(conflicts, n)
		}
	}
	if len(conflicts) > 0 {
		return NewInstallmentClaimedError(conflicts)
	}

	return nil
}

// SplitAmount divides a submitted amount across n installments. The first
// n-1 shares are the even split rounded to cents; the last share is the
// exact remainder, so the shares always sum to the submitted amount and
// repeated fractional splits cannot drift the ledger invariant.
func SplitAmount(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		return nil
	}
	shares := make([]decimal.Decimal, n)
	if n == 1 {
		shares[0] = total
		return shares
	}
	base := total.Div(decimal.NewFromInt(int64(n))).Round(2)
	sum := decimal.Zero
	for i := 0; i < n-1; i++ {
		shares[i] = base
		sum = sum.Add(base)
	}
	shares[n-1] = total.Sub(sum)
	return shares
}

// ExpectedAmount returns the nominal amount for paying count installments
func ExpectedAmount(student *Student, count int) decimal.Decimal {
	return student.InstallmentAmount().Mul(decimal.NewFromInt(int64(count))).Round(2)
}

// ValidateTransferAmount enforces the transfer path's exact-amount rule:
// bank transfers are irreversible, so the submitted amount must equal the
// nominal price of the selected installments within one cent. Cash and
// upload intakes deliberately skip this check (administrator judgment).
func ValidateTransferAmount(student *Student, count int, submitted decimal.Decimal) error {
	expected := ExpectedAmount(student, count)
	if submitted.Sub(expected).Abs().GreaterThan(transferTolerance) {
		return shared.NewDomainError(ErrCodeAmountMismatch,
			fmt.Sprintf("Transfer amount %s does not match expected %s for %d installment(s)",
				submitted.StringFixed(2), expected.StringFixed(2), count))
	}
	return nil
}

// EstimateCoverage estimates how many installments a payment amount covers.
// Pure UX helper for pre-selecting installments in the review screens; the
// reconciliation policy never relies on it.
func EstimateCoverage(amount, totalAmount decimal.Decimal, installments int) int {
	if installments < 1 || totalAmount.LessThanOrEqual(decimal.Zero) || amount.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	if amount.GreaterThanOrEqual(totalAmount) {
		return installments
	}

	perInstallment := totalAmount.Div(decimal.NewFromInt(int64(installments)))
	exact := amount.Div(perInstallment)
	covered := exact.Floor()
	if exact.Sub(covered).GreaterThanOrEqual(coverageThreshold) {
		covered = covered.Add(decimal.NewFromInt(1))
	}

	n := int(covered.IntPart())
	if n > installments {
		n = installments
	}
	return n
}
