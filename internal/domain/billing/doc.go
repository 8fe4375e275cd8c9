// Package billing contains the installment-payment domain: the student
// ledger (total obligation, paid amount, outstanding balance), payment
// records grouped by transaction reference, and the reconciliation policy
// that decides which installment selections are admissible and how a
// submitted amount is split across them.
//
// Installments are a virtual numbering 1..N over a student's obligation;
// there is no persisted installment entity. "Installment N is paid" is
// derived from the student's payment records.
package billing
