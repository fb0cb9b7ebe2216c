// Package export renders a statement's canonical table as CSV or XLSX.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// TimeLayout is the completion time format printed on M-Pesa statements.
const TimeLayout = "2006-01-02 15:04:05"

const (
	transactionsSheet = "Transactions"
	summarySheet      = "Summary"
)

// Row is one exported transaction.
type Row struct {
	ReceiptNo          string `csv:"Receipt No."`
	CompletionTime     string `csv:"Completion Time"`
	Details            string `csv:"Details"`
	Status             string `csv:"Transaction Status"`
	PaidIn             string `csv:"Paid In"`
	Withdrawn          string `csv:"Withdrawn"`
	Balance            string `csv:"Balance"`
	Amount             string `csv:"Amount"`
	TransactionType    string `csv:"Transaction Type"`
	MonthName          string `csv:"Month"`
	DayName            string `csv:"Day"`
	Hour               string `csv:"Hour"`
	CounterpartyName   string `csv:"Counterparty Name"`
	CounterpartyNumber string `csv:"Counterparty Number"`
	SaveOrSpend        string `csv:"Save/Spend"`
}

var header = []string{
	"Receipt No.", "Completion Time", "Details", "Transaction Status",
	"Paid In", "Withdrawn", "Balance", "Amount", "Transaction Type",
	"Month", "Day", "Hour", "Counterparty Name", "Counterparty Number", "Save/Spend",
}

// Rows converts transactions to export rows. Only completed transactions
// are ever stored, so the status column is constant.
func Rows(txs []statement.Transaction) []Row {
	rows := make([]Row, len(txs))
	for i, tx := range txs {
		r := Row{
			ReceiptNo:        tx.ReceiptNo,
			Details:          tx.Details,
			Status:           "Completed",
			PaidIn:           tx.PaidIn.String(),
			Withdrawn:        tx.Withdrawn.String(),
			Balance:          tx.Balance.String(),
			TransactionType:  tx.TransactionType,
			MonthName:        tx.MonthName,
			DayName:          tx.DayName,
			CounterpartyName: tx.CounterpartyName,
			SaveOrSpend:      tx.SaveOrSpend,
		}
		r.CompletionTime = formatTime(tx.CompletionTime)
		if tx.Amount.Valid {
			r.Amount = tx.Amount.Decimal.String()
		}
		if tx.Hour != nil {
			r.Hour = strconv.Itoa(*tx.Hour)
		}
		if tx.CounterpartyNumber != nil {
			r.CounterpartyNumber = *tx.CounterpartyNumber
		}
		rows[i] = r
	}
	return rows
}

// WriteCSV writes the statement's transactions as CSV with a header row.
func WriteCSV(w io.Writer, stmt *statement.Statement) error {
	rows := Rows(stmt.Transactions)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with the transactions and a summary sheet.
func WriteXLSX(w io.Writer, stmt *statement.Statement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", transactionsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeTransactions(f, stmt.Transactions); err != nil {
		return err
	}
	if err := writeSummary(f, stmt); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func writeTransactions(f *excelize.File, txs []statement.Transaction) error {
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(transactionsSheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(transactionsSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range Rows(txs) {
		tx := txs[i]
		values := []interface{}{
			r.ReceiptNo,
			r.CompletionTime,
			r.Details,
			r.Status,
			tx.PaidIn.InexactFloat64(),
			tx.Withdrawn.InexactFloat64(),
			tx.Balance.InexactFloat64(),
			tx.AmountOrZero().InexactFloat64(),
			r.TransactionType,
			r.MonthName,
			r.DayName,
			r.Hour,
			r.CounterpartyName,
			r.CounterpartyNumber,
			r.SaveOrSpend,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(transactionsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, stmt *statement.Statement) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	from, to := stmt.Period()
	rows := [][]interface{}{
		{"Customer Name", stmt.CustomerName},
		{"Mobile Number", stmt.MobileNumber},
		{"Source", stmt.Source.Filename},
		{"Transactions", stmt.Len()},
		{"From", formatTime(from)},
		{"To", formatTime(to)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(TimeLayout)
}
