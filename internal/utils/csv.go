package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"paperdesk/internal/domain"
)

var candleHeader = []string{"open_time", "time", "open", "high", "low", "close", "volume"}

// WriteCandles writes candles as CSV to w, one row per candle.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		err := writer.Write([]string{
			c.OpenTime().UTC().Format(time.RFC3339),
			strconv.FormatInt(c.Time, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCandlesToCSV writes candles to filename, creating its directory.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteCandles(file, candles)
}

// ReadCandles parses CSV produced by WriteCandles.
func ReadCandles(r io.Reader) ([]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(candleHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	candles := make([]domain.Candle, 0, len(records)-1)
	for i, rec := range records[1:] {
		ts, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing time '%s': %w", i+2, rec[1], err)
		}
		var vals [5]float64
		for j := range vals {
			vals[j], err = strconv.ParseFloat(rec[j+2], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing %s '%s': %w", i+2, candleHeader[j+2], rec[j+2], err)
			}
		}
		candles = append(candles, domain.Candle{
			Time: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	return candles, nil
}

// ReadCandlesFromCSV reads candles from filename.
func ReadCandlesFromCSV(filename string) ([]domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadCandles(file)
}
