package service

import (
	"time"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Summary describes a committed statement without its transactions.
type Summary struct {
	CustomerName string           `json:"customer_name"`
	MobileNumber string           `json:"mobile_number"`
	Source       statement.Source `json:"source"`
	Fingerprint  string           `json:"fingerprint"`
	Pages        int              `json:"pages"`
	Transactions int              `json:"transactions"`
	From         *time.Time       `json:"from"`
	To           *time.Time       `json:"to"`
	ByType       map[string]int   `json:"by_type"`
	Warnings     []string         `json:"warnings,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Summarize builds the Summary of stmt.
func Summarize(stmt *statement.Statement) Summary {
	if stmt == nil {
		return Summary{ByType: map[string]int{}}
	}

	byType := make(map[string]int)
	for _, tx := range stmt.Transactions {
		byType[tx.TransactionType]++
	}
	from, to := stmt.Period()

	return Summary{
		CustomerName: stmt.CustomerName,
		MobileNumber: stmt.MobileNumber,
		Source:       stmt.Source,
		Fingerprint:  stmt.Fingerprint,
		Pages:        stmt.Pages,
		Transactions: stmt.Len(),
		From:         from,
		To:           to,
		ByType:       byType,
		Warnings:     stmt.Warnings,
		CreatedAt:    stmt.CreatedAt,
	}
}
