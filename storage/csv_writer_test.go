package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-monitor/models"
)

func TestCSVWriterWriteTable(t *testing.T) {
	tbl := models.Table{
		Columns: []models.TableColumn{{ID: "zip_code"}, {ID: "street"}, {ID: "price"}, {ID: "bed"}},
		Rows: []map[string]any{
			{"zip_code": "77546", "street": "1 Main St, Unit 2", "price": 400000.5, "bed": 3},
			{"zip_code": "07001", "price": 1e6},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(&buf).WriteTable(tbl))

	want := "zip_code,street,price,bed\n" +
		"77546,\"1 Main St, Unit 2\",400000.5,3\n" +
		"07001,,1000000,\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVWriterEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(&buf).WriteTable(models.Table{
		Columns: []models.TableColumn{{ID: "price"}},
		Warning: models.NoDataWarning,
	}))
	assert.Equal(t, "price\n", buf.String())
}

func TestCSVWriterAsTableWriter(t *testing.T) {
	var buf bytes.Buffer
	var w TableWriter = NewCSVWriter(&buf)

	require.NoError(t, w.WriteTable(models.Table{
		Columns: []models.TableColumn{{ID: "city"}},
		Rows:    []map[string]any{{"city": "League City"}},
	}))
	assert.Equal(t, "city\nLeague City\n", buf.String())
}
