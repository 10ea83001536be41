// Package importer turns spreadsheet rows into validated farmer and price
// bracket batches and hands them to the repositories' regular write path.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	repo "github.com/mamadbah2/dairysync/internal/repository/sheets"
)

const (
	farmersDataRange = "Farmers!A:C"
	pricesDataRange  = "FatTable!A:C"
)

// FarmerSink accepts a farmer batch.
type FarmerSink interface {
	Import(ctx context.Context, farmers []models.Farmer) (int, error)
}

// PriceSink accepts a price bracket batch.
type PriceSink interface {
	Import(ctx context.Context, brackets []models.PriceBracket) (int, error)
}

// Result counts what an import read and stored.
type Result struct {
	Rows     int `json:"rows"`
	Skipped  int `json:"skipped"`
	Imported int `json:"imported"`
}

// Importer reads import sheets.
type Importer struct {
	repo    repo.Repository
	farmers FarmerSink
	prices  PriceSink
	logger  *zap.Logger
}

// NewImporter wires a new importer instance.
func NewImporter(repository repo.Repository, farmers FarmerSink, prices PriceSink, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{repo: repository, farmers: farmers, prices: prices, logger: logger}
}

// ImportFarmers reads name, phone and address columns.
func (i *Importer) ImportFarmers(ctx context.Context) (Result, error) {
	rows, err := i.repo.ReadRange(ctx, farmersDataRange)
	if err != nil {
		return Result{}, fmt.Errorf("load farmers range: %w", err)
	}

	res := Result{Rows: len(rows)}
	farmers := make([]models.Farmer, 0, len(rows))
	for n, row := range rows {
		name := cell(row, 0)
		if name == "" || (n == 0 && strings.EqualFold(name, "name")) {
			res.Skipped++
			continue
		}
		farmers = append(farmers, models.Farmer{
			Name:    name,
			Phone:   cell(row, 1),
			Address: cell(row, 2),
		})
	}

	imported, err := i.farmers.Import(ctx, farmers)
	res.Imported = imported
	if err != nil {
		return res, fmt.Errorf("import farmers: %w", err)
	}
	i.logger.Info("farmers imported", zap.Int("rows", res.Rows), zap.Int("imported", res.Imported))
	return res, nil
}

// ImportPrices reads from, to and price columns.
func (i *Importer) ImportPrices(ctx context.Context) (Result, error) {
	rows, err := i.repo.ReadRange(ctx, pricesDataRange)
	if err != nil {
		return Result{}, fmt.Errorf("load fat table range: %w", err)
	}

	res := Result{Rows: len(rows)}
	brackets := make([]models.PriceBracket, 0, len(rows))
	for _, row := range rows {
		from, errFrom := parseFloat(cell(row, 0))
		to, errTo := parseFloat(cell(row, 1))
		price, errPrice := parseFloat(cell(row, 2))
		if errFrom != nil || errTo != nil || errPrice != nil {
			i.logger.Debug("skip fat table row", zap.Any("row", row))
			res.Skipped++
			continue
		}
		brackets = append(brackets, models.PriceBracket{From: from, To: to, Price: price})
	}

	imported, err := i.prices.Import(ctx, brackets)
	res.Imported = imported
	if err != nil {
		return res, fmt.Errorf("import fat table: %w", err)
	}
	i.logger.Info("fat table imported", zap.Int("rows", res.Rows), zap.Int("imported", res.Imported))
	return res, nil
}

func cell(row []interface{}, idx int) string {
	if idx >= len(row) || row[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

// parseFloat accepts both dot and comma decimal separators.
func parseFloat(value string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty numeric value")
	}
	return strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
}
