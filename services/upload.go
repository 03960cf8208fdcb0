package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"market-monitor/models"
	"market-monitor/utils"
)

// UploadErrorText is shown in place of a preview that could not be parsed.
const UploadErrorText = "There was an error processing this file."

// Preview window: the first rows, columns [firstPreviewCol, lastPreviewCol).
const (
	firstPreviewCol = 2
	lastPreviewCol  = 10
)

var errUnsupportedUpload = errors.New("unsupported file type")

// UploadFile is one uploaded file held in memory.
type UploadFile struct {
	Name         string
	LastModified time.Time
	Data         []byte
}

// UploadPreviewer renders uploaded tables read-only. Uploads never reach
// the Dataset.
type UploadPreviewer struct {
	logger         *utils.Logger
	rows           int
	maxConcurrency int
}

// NewUploadPreviewer creates a previewer showing at most rows data rows and
// parsing at most maxConcurrency files at once.
func NewUploadPreviewer(logger *utils.Logger, rows, maxConcurrency int) *UploadPreviewer {
	if rows < 1 {
		rows = 1
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &UploadPreviewer{logger: logger, rows: rows, maxConcurrency: maxConcurrency}
}

// Preview parses one file. A parse failure is reported in Preview.Error.
func (p *UploadPreviewer) Preview(f UploadFile) models.Preview {
	pv := models.Preview{Filename: f.Name, LastModified: f.LastModified}

	records, err := readUpload(f)
	if err != nil {
		p.logger.Warn("[upload] %s: %v", f.Name, err)
		pv.Error = UploadErrorText
		return pv
	}
	if len(records) == 0 {
		pv.Columns = []string{}
		pv.Rows = [][]string{}
		return pv
	}

	width := previewWidth(records[0])
	pv.Columns = window(records[0], width)
	body := records[1:]
	if len(body) > p.rows {
		body = body[:p.rows]
	}
	pv.Rows = make([][]string, len(body))
	for i, r := range body {
		pv.Rows[i] = window(r, width)
	}
	return pv
}

// PreviewAll parses files concurrently and returns previews in input order.
// Only cancellation of ctx fails the call; per-file errors stay per file.
func (p *UploadPreviewer) PreviewAll(ctx context.Context, files []UploadFile) ([]models.Preview, error) {
	out := make([]models.Preview, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.Preview(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("upload preview: %w", err)
	}
	return out, nil
}

func readUpload(f UploadFile) ([][]string, error) {
	name := strings.ToLower(f.Name)
	switch {
	case strings.Contains(name, "csv"):
		r := csv.NewReader(bytes.NewReader(f.Data))
		r.FieldsPerRecord = -1
		return r.ReadAll()
	case strings.Contains(name, "xls"):
		return readSpreadsheet(bytes.NewReader(f.Data))
	}
	return nil, fmt.Errorf("%w: %s", errUnsupportedUpload, f.Name)
}

// readSpreadsheet returns the rows of the first sheet.
func readSpreadsheet(r io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return wb.GetRows(sheets[0])
}

// window cuts width preview columns out of a record, padding short records.
func window(record []string, width int) []string {
	out := make([]string, width)
	for i := range out {
		if j := firstPreviewCol + i; j < len(record) {
			out[i] = record[j]
		}
	}
	return out
}

func previewWidth(header []string) int {
	return max(0, min(len(header), lastPreviewCol)-firstPreviewCol)
}
