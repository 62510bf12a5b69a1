package helper

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseRecipientSheetCSV(t *testing.T) {
	input := "number,message\n22123456,Hello A\n+33612345678\n\n55123456, Hi C \n"

	rows, err := ParseRecipientSheet("list.csv", strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []RecipientRow{
		{Number: "22123456", Message: "Hello A"},
		{Number: "+33612345678"},
		{Number: "55123456", Message: "Hi C"},
	}, rows)
}

func TestParseRecipientSheetXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Phone", "Text"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"22123456", "first"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"22654321"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	rows, err := ParseRecipientSheet("list.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, []RecipientRow{
		{Number: "22123456", Message: "first"},
		{Number: "22654321"},
	}, rows)
}

func TestParseRecipientSheetUnsupported(t *testing.T) {
	_, err := ParseRecipientSheet("list.pdf", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnsupportedSheet)
}

func TestWriteSheetCanBeImported(t *testing.T) {
	rows := [][]string{
		{"21620123456", "not a valid recipient"},
		{"21698765432", "session closed"},
	}
	for _, format := range []string{"xlsx", "csv"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteSheet(&buf, format, "Failures", []string{"Number", "Reason"}, rows))

			parsed, err := ParseRecipientSheet("failures."+format, &buf)
			require.NoError(t, err)
			assert.Equal(t, []RecipientRow{
				{Number: "21620123456", Message: "not a valid recipient"},
				{Number: "21698765432", Message: "session closed"},
			}, parsed)
		})
	}

	assert.ErrorIs(t, WriteSheet(&bytes.Buffer{}, "pdf", "x", nil, nil), ErrUnsupportedSheet)
}
