package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"

	"dispatch/internal/domain"
)

const statementTransactionLimit = 200

// Statement is a technician's wallet position with recent ledger records.
type Statement struct {
	Wallet       *domain.WalletAccount
	Transactions []*domain.Transaction
	Credits      int64
	Debits       int64
	Settlements  int64
	GeneratedAt  time.Time
}

// StatementService builds wallet statements.
type StatementService struct {
	ledger *LedgerService
}

// NewStatementService creates a new StatementService.
func NewStatementService(ledger *LedgerService) *StatementService {
	return &StatementService{ledger: ledger}
}

// Build collects the statement data for a technician.
func (s *StatementService) Build(ctx context.Context, technicianID string) (*Statement, error) {
	wallet, err := s.ledger.GetWallet(ctx, technicianID)
	if err != nil {
		return nil, err
	}

	txns, err := s.ledger.ListTransactions(ctx, technicianID, statementTransactionLimit)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		Wallet:       wallet,
		Transactions: txns,
		GeneratedAt:  time.Now(),
	}
	for _, txn := range txns {
		if txn.Status != domain.TransactionStatusCompleted {
			continue
		}
		switch txn.Type {
		case domain.TransactionTypeCredit:
			st.Credits += txn.Amount
		case domain.TransactionTypeDebit:
			st.Debits += txn.Amount
		case domain.TransactionTypeSettlement:
			st.Settlements += txn.Amount
		}
	}
	return st, nil
}

// RenderPDF builds the statement and renders it as a PDF document.
// Returns the document and a suggested filename.
func (s *StatementService) RenderPDF(ctx context.Context, technicianID string) ([]byte, string, error) {
	st, err := s.Build(ctx, technicianID)
	if err != nil {
		return nil, "", err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Wallet Statement", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "WALLET STATEMENT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	summary := []string{
		fmt.Sprintf("Technician     : %s", st.Wallet.TechnicianID),
		fmt.Sprintf("Generated      : %s", st.GeneratedAt.Format("2006-01-02 15:04")),
		fmt.Sprintf("Balance        : %d", st.Wallet.Balance),
		fmt.Sprintf("Locked         : %d", st.Wallet.LockedAmount),
		fmt.Sprintf("Commission due : %d", st.Wallet.CommissionDue),
		fmt.Sprintf("COD limit      : %d", st.Wallet.CODLimit),
	}
	for _, line := range summary {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	headers := []struct {
		title string
		width float64
	}{
		{"Date", 32}, {"Type", 22}, {"Description", 68}, {"Amount", 22}, {"Status", 22}, {"Balance", 24},
	}
	for _, h := range headers {
		pdf.CellFormat(h.width, 7, h.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, txn := range st.Transactions {
		pdf.CellFormat(32, 6, txn.CreatedAt.Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(22, 6, string(txn.Type), "1", 0, "L", false, 0, "")
		pdf.CellFormat(68, 6, truncate(txn.Description, 40), "1", 0, "L", false, 0, "")
		pdf.CellFormat(22, 6, fmt.Sprint(txn.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(22, 6, string(txn.Status), "1", 0, "L", false, 0, "")
		pdf.CellFormat(24, 6, fmt.Sprint(txn.BalanceAfter), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Credits: %d   Debits: %d   Commission settled: %d", st.Credits, st.Debits, st.Settlements))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("render statement: %w", err)
	}

	filename := fmt.Sprintf("statement_%s_%s.pdf", technicianID, st.GeneratedAt.Format("20060102"))
	return buf.Bytes(), filename, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
