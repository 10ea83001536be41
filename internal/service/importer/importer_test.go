package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

type fakeSheet struct {
	ranges map[string][][]interface{}
	err    error
}

func (f fakeSheet) ReadRange(_ context.Context, sheetRange string) ([][]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ranges[sheetRange], nil
}

type farmerSink struct {
	got []models.Farmer
	err error
}

func (s *farmerSink) Import(_ context.Context, farmers []models.Farmer) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.got = farmers
	return len(farmers), nil
}

type priceSink struct{ got []models.PriceBracket }

func (s *priceSink) Import(_ context.Context, brackets []models.PriceBracket) (int, error) {
	s.got = brackets
	return len(brackets), nil
}

func TestImporter_ImportFarmers(t *testing.T) {
	sheet := fakeSheet{ranges: map[string][][]interface{}{
		farmersDataRange: {
			{"Name", "Phone", "Address"},
			{" Awa Diallo ", "620000000", "Labe"},
			{""},
			{"Mamadou Bah"},
		},
	}}
	sink := &farmerSink{}
	imp := NewImporter(sheet, sink, &priceSink{}, nil)

	res, err := imp.ImportFarmers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Rows: 4, Skipped: 2, Imported: 2}, res)
	require.Len(t, sink.got, 2)
	assert.Equal(t, models.Farmer{Name: "Awa Diallo", Phone: "620000000", Address: "Labe"}, sink.got[0])
	assert.Equal(t, "Mamadou Bah", sink.got[1].Name)
	assert.Empty(t, sink.got[1].Phone)
}

func TestImporter_ImportPrices(t *testing.T) {
	sheet := fakeSheet{ranges: map[string][][]interface{}{
		pricesDataRange: {
			{"From", "To", "Price"},
			{"3", "3,5", "50"},
			{3.5, 4.0, "52.5"},
			{"4", "", "55"},
		},
	}}
	sink := &priceSink{}
	imp := NewImporter(sheet, &farmerSink{}, sink, nil)

	res, err := imp.ImportPrices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Rows: 4, Skipped: 2, Imported: 2}, res)
	assert.Equal(t, []models.PriceBracket{
		{From: 3, To: 3.5, Price: 50},
		{From: 3.5, To: 4, Price: 52.5},
	}, sink.got)
}

func TestImporter_Errors(t *testing.T) {
	t.Run("sheet read failure", func(t *testing.T) {
		imp := NewImporter(fakeSheet{err: errors.New("quota")}, &farmerSink{}, &priceSink{}, nil)

		_, err := imp.ImportFarmers(context.Background())
		assert.ErrorContains(t, err, "quota")
	})

	t.Run("rejected batch keeps counts", func(t *testing.T) {
		sheet := fakeSheet{ranges: map[string][][]interface{}{farmersDataRange: {{"A"}}}}
		imp := NewImporter(sheet, &farmerSink{err: models.ErrValidation}, &priceSink{}, nil)

		res, err := imp.ImportFarmers(context.Background())
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.Equal(t, 1, res.Rows)
		assert.Zero(t, res.Imported)
	})
}

func TestParseFloat(t *testing.T) {
	v, err := parseFloat("4,25")
	require.NoError(t, err)
	assert.Equal(t, 4.25, v)

	_, err = parseFloat("")
	assert.Error(t, err)
}
