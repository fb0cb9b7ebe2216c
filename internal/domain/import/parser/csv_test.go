package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement/statementtest"
)

func TestLedgerParser_Parse(t *testing.T) {
	parser := NewLedgerParser()

	t.Run("parses a plain export", func(t *testing.T) {
		csv := `Receipt No.,Completion Time,Details,Transaction Status,Paid In,Withdrawn,Balance
SAB1C2D3E4,2024-01-05 10:15:00,Customer Transfer to 0722000000 - John Doe,Completed,,"-1,000.00","4,000.00"
SAB1C2D3E5,2024-01-06 09:00:00,Funds received from 0711000000 - Mary,Completed,"2,500.00",,"6,500.00"`

		result, err := parser.Parse(strings.NewReader(csv))
		require.NoError(t, err)

		assert.Equal(t, statementtest.Header, result.Table.Header)
		assert.Equal(t, 2, result.Table.Len())
		assert.Equal(t, 2, result.TotalRows)
		assert.Empty(t, result.Errors)
		assert.Equal(t, "-1,000.00", result.Table.Rows[0][5])
	})

	t.Run("skips preamble and blank lines", func(t *testing.T) {
		csv := "M-PESA STATEMENT\nCustomer Name: JOHN DOE\n\n" +
			"Receipt No.,Completion Time,Details,Transaction Status,Paid In,Withdrawn,Balance\n" +
			",,,,,,\n" +
			"SAB1C2D3E4,2024-01-05 10:15:00,Airtime Purchase,Completed,,-50.00,950.00\n"

		result, err := parser.Parse(strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Table.Len())
		assert.Equal(t, 1, result.SkippedRows)
	})

	t.Run("reports ragged rows without failing", func(t *testing.T) {
		csv := "Receipt No.,Details,Transaction Status\nSAB1C2D3E4,Airtime Purchase\n"

		result, err := parser.Parse(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 2, result.Errors[0].Row)
		assert.Equal(t, []string{"SAB1C2D3E4", "Airtime Purchase", ""}, result.Table.Rows[0])
	})

	t.Run("semicolon delimited", func(t *testing.T) {
		csv := "Receipt No.;Completion Time;Details;Transaction Status;Paid In;Withdrawn;Balance\n" +
			"SAB1C2D3E4;2024-01-05 10:15:00;Airtime Purchase;Completed;;-50.00;950.00\n"

		result, err := parser.WithDelimiter(';').Parse(strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, statementtest.Header, result.Table.Header)
		assert.Equal(t, "Airtime Purchase", result.Table.Rows[0][2])
	})

	t.Run("skipped preamble lines are not tokenized", func(t *testing.T) {
		csv := "\"Statement period: January 2024\n" +
			"Receipt No.,Completion Time,Details,Transaction Status,Paid In,Withdrawn,Balance\n" +
			"SAB1C2D3E4,2024-01-05 10:15:00,Airtime Purchase,Completed,,-50.00,950.00\n" +
			"SAB1C2D3E5,2024-01-05 11:30:00,Airtime Purchase\n"

		_, err := parser.Parse(strings.NewReader(csv))
		assert.ErrorIs(t, err, statement.ErrNoTablesFound, "the open quote swallows the header")

		result, err := parser.WithSkipLines(1).Parse(strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, statementtest.Header, result.Table.Header)
		assert.Equal(t, 2, result.Table.Len())
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 4, result.Errors[0].Row)
	})

	t.Run("skipping past the end finds no ledger", func(t *testing.T) {
		_, err := parser.WithSkipLines(5).Parse(strings.NewReader("Details\nrow\n"))
		assert.ErrorIs(t, err, statement.ErrNoTablesFound)
	})

	t.Run("no ledger header", func(t *testing.T) {
		_, err := parser.Parse(strings.NewReader("a,b,c\n1,2,3\n"))
		assert.ErrorIs(t, err, statement.ErrNoTablesFound)
	})

	t.Run("round trips generated ledgers", func(t *testing.T) {
		gen := statementtest.New(7)
		rows := gen.Mixed(25)
		data, err := statementtest.CSV(rows)
		require.NoError(t, err)

		result, err := parser.Parse(strings.NewReader(string(data)))
		require.NoError(t, err)
		require.Equal(t, len(rows), result.Table.Len())
		assert.Equal(t, rows[3].Details, result.Table.Rows[3][2])
	})
}
