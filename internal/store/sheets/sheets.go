// Package sheets implements the record store on a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/jonathan/lastseen/internal/store"
)

const storeName = "sheets"

// DefaultCredentialsFile is where the service account key is mounted.
const DefaultCredentialsFile = "/etc/secrets/service_account.json"

// Config configures the Sheets store.
type Config struct {
	SpreadsheetID string
	// CredentialsFile is a service account JSON key. Ignored when ClientOptions is set.
	CredentialsFile string
	Layout          store.Layout
	// ClientOptions replace credential loading, e.g. to point at a test server.
	ClientOptions []option.ClientOption
	Logger        *zap.Logger
}

// Store reads identifiers from and writes results to one spreadsheet.
type Store struct {
	svc    *gsheets.Service
	id     string
	layout store.Layout
	logger *zap.Logger
}

// New authorizes with Google and returns a Store. Credential problems are
// returned as *store.AuthError.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet ID is required")
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("sheets: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := cfg.ClientOptions
	if len(opts) == 0 {
		path := cfg.CredentialsFile
		if path == "" {
			path = DefaultCredentialsFile
		}
		logger.Info("Loading service account credentials", zap.String("path", path))
		if _, err := os.Stat(path); err != nil {
			return nil, &store.AuthError{Store: storeName, Cause: fmt.Errorf("service account file not found: %w", err)}
		}
		opts = []option.ClientOption{
			option.WithCredentialsFile(path),
			option.WithScopes(gsheets.SpreadsheetsScope),
		}
	}

	logger.Info("Authorizing with Google")
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &store.AuthError{Store: storeName, Cause: err}
	}

	return &Store{svc: svc, id: cfg.SpreadsheetID, layout: cfg.Layout, logger: logger}, nil
}

// ReadIdentifiers reads the identifier column. Rows with an empty first cell
// come back as "" to keep later rows in place; trailing empty rows are not
// returned by the API.
func (s *Store) ReadIdentifiers(ctx context.Context) ([]string, error) {
	readRange := s.layout.ReadRange()
	s.logger.Info("Reading identifiers from sheet", zap.String("range", readRange))

	ids, err := s.readColumn(ctx, readRange)
	if err != nil {
		return nil, fmt.Errorf("failed to read identifiers: %w", err)
	}

	s.logger.Info("Found identifiers", zap.Int("count", len(ids)))
	return ids, nil
}

// ReadResults reads back the result column.
func (s *Store) ReadResults(ctx context.Context) ([]string, error) {
	results, err := s.readColumn(ctx, s.layout.ResultRange())
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

func (s *Store) readColumn(ctx context.Context, a1 string) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.id, a1).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err)
	}

	values := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 && row[0] != nil {
			values[i] = fmt.Sprint(row[0])
		}
	}
	return values, nil
}

// WriteResults writes all results in one update call. Values are stored RAW
// so the sheet does not reinterpret them.
func (s *Store) WriteResults(ctx context.Context, results []string) error {
	if len(results) == 0 {
		return nil
	}

	writeRange := s.layout.WriteRange(len(results))
	s.logger.Info("Writing results to sheet", zap.String("range", writeRange), zap.Int("rows", len(results)))

	rows := make([][]interface{}, len(results))
	for i, r := range results {
		rows[i] = []interface{}{r}
	}

	_, err := s.svc.Spreadsheets.Values.Update(s.id, writeRange, &gsheets.ValueRange{
		Range:          writeRange,
		MajorDimension: "ROWS",
		Values:         rows,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write results: %w", classify(err))
	}
	return nil
}

// Close is a no-op; the API client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}

// classify marks credential and permission failures as *store.AuthError.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return &store.AuthError{Store: storeName, Cause: err}
		}
		return err
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return &store.AuthError{Store: storeName, Cause: err}
	}
	return err
}
