package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImportCSVAppendsRows(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")

	csvBody := strings.Join([]string{
		"item_code,kind,date,qty,unit_cost,amount,supplier,grn_number,purpose,remarks",
		"RM-STEEL,OPENING,2024-01-01,100,12.50,,,,,carried forward",
		"RM-STEEL,RECEIPT,2024-02-10,40,13.00,,Acme Metals,GRN-7001,,",
		"RM-STEEL,ISSUE,2024-03-01,30,,,,,line 3 welding,",
	}, "\n")

	report, err := svc.ImportCSV(context.Background(), strings.NewReader(csvBody), 7)
	require.NoError(t, err)
	require.Equal(t, 3, report.Appended)
	require.Empty(t, report.Rejected)

	position, err := svc.ComputeBalance(context.Background(), "RM-STEEL", day("2024-03-15"))
	require.NoError(t, err)
	require.InDelta(t, 110.0, position.CurrentStock, 0.0001)
}

func TestImportCSVIsolatesBadRows(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")

	csvBody := strings.Join([]string{
		"item_code,kind,date,qty,unit_cost",
		"RM-A,RECEIPT,2024-02-10,40,13.00",
		",RECEIPT,2024-02-11,10,5.00",
		"RM-A,RECEIPT,not-a-date,10,5.00",
		"RM-A,TRANSFER,2024-02-12,10,5.00",
		"RM-A,ISSUE,2024-02-13,5,",
	}, "\n")

	report, err := svc.ImportCSV(context.Background(), strings.NewReader(csvBody), 7)
	require.NoError(t, err)
	require.Equal(t, 2, report.Appended)
	require.Len(t, report.Rejected, 3)
	require.Equal(t, 3, report.Rejected[0].Line)
	require.Equal(t, 4, report.Rejected[1].Line)
	require.Equal(t, 5, report.Rejected[2].Line)
}

func TestImportCSVHeaderValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), "2024-03-15")

	_, err := svc.ImportCSV(context.Background(), strings.NewReader(""), 1)
	require.ErrorIs(t, err, ErrEmptyImport)

	_, err = svc.ImportCSV(context.Background(), strings.NewReader("item_code,kind,qty\n"), 1)
	require.ErrorContains(t, err, "missing column")

	_, err = svc.ImportCSV(context.Background(), strings.NewReader("item_code,kind,date,qty\n"), 1)
	require.ErrorIs(t, err, ErrEmptyImport)
}
