package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const uploadCSV = `c0,c1,c2,c3,c4,c5,c6,c7,c8,c9,c10
0,1,2,3,4,5,6,7,8,9,10
`

func manyRowsCSV(n int) string {
	s := "a,b,c,d\n"
	for i := 0; i < n; i++ {
		s += fmt.Sprintf("%d,x,y%d,z\n", i, i)
	}
	return s
}

func TestPreviewCSVWindow(t *testing.T) {
	p := NewUploadPreviewer(newTestLogger(), 10, 2)
	modified := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	pv := p.Preview(UploadFile{Name: "data.csv", LastModified: modified, Data: []byte(uploadCSV)})

	assert.Empty(t, pv.Error)
	assert.Equal(t, "data.csv", pv.Filename)
	assert.Equal(t, modified, pv.LastModified)
	assert.Equal(t, []string{"c2", "c3", "c4", "c5", "c6", "c7", "c8", "c9"}, pv.Columns)
	require.Len(t, pv.Rows, 1)
	assert.Equal(t, []string{"2", "3", "4", "5", "6", "7", "8", "9"}, pv.Rows[0])
}

func TestPreviewLimitsRows(t *testing.T) {
	p := NewUploadPreviewer(newTestLogger(), 10, 1)
	pv := p.Preview(UploadFile{Name: "many.csv", Data: []byte(manyRowsCSV(25))})

	assert.Equal(t, []string{"c", "d"}, pv.Columns)
	require.Len(t, pv.Rows, 10)
	assert.Equal(t, []string{"y9", "z"}, pv.Rows[9])
}

func TestPreviewSpreadsheet(t *testing.T) {
	wb := excelize.NewFile()
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]any{"id", "status", "price", "bed"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A2", &[]any{"1", "sold", "300000", "3"}))
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	p := NewUploadPreviewer(newTestLogger(), 10, 1)
	pv := p.Preview(UploadFile{Name: "listings.xlsx", Data: buf.Bytes()})

	assert.Empty(t, pv.Error)
	assert.Equal(t, []string{"price", "bed"}, pv.Columns)
	assert.Equal(t, [][]string{{"300000", "3"}}, pv.Rows)
}

func TestPreviewErrors(t *testing.T) {
	p := NewUploadPreviewer(newTestLogger(), 10, 1)

	tests := []UploadFile{
		{Name: "broken.xlsx", Data: []byte("not a workbook")},
		{Name: "broken.csv", Data: []byte("a,\"b\nc")},
		{Name: "notes.txt", Data: []byte("hello")},
	}
	for _, f := range tests {
		pv := p.Preview(f)
		assert.Equal(t, UploadErrorText, pv.Error, f.Name)
		assert.Nil(t, pv.Rows, f.Name)
	}
}

// Only OOXML workbooks are readable; a legacy BIFF .xls is reported per file.
func TestPreviewLegacyXLSShowsErrorText(t *testing.T) {
	p := NewUploadPreviewer(newTestLogger(), 10, 1)
	biff := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 504)...)

	pv := p.Preview(UploadFile{Name: "report.xls", Data: biff})
	assert.Equal(t, UploadErrorText, pv.Error)
	assert.Nil(t, pv.Rows)
}

func TestPreviewAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	p := NewUploadPreviewer(newTestLogger(), 10, 2)
	files := []UploadFile{
		{Name: "a.csv", Data: []byte(uploadCSV)},
		{Name: "bad.xls", Data: []byte("garbage")},
		{Name: "c.csv", Data: []byte(manyRowsCSV(3))},
	}

	got, err := p.PreviewAll(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "a.csv", got[0].Filename)
	assert.Empty(t, got[0].Error)
	assert.Equal(t, UploadErrorText, got[1].Error)
	assert.Len(t, got[2].Rows, 3)
}

func TestPreviewAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewUploadPreviewer(newTestLogger(), 10, 1)
	_, err := p.PreviewAll(ctx, []UploadFile{{Name: "a.csv", Data: []byte(uploadCSV)}})
	assert.ErrorIs(t, err, context.Canceled)
}
