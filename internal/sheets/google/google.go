package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "cobros/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultClientsSheet  = "Clientes"
	DefaultPaymentsSheet = "Pagos"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	clientsSheet  string
	paymentsSheet string
}

// Ensure interface conformance
var (
	_ ports.ClientRowReader = (*Client)(nil)
	_ ports.PaymentMirror   = (*Client)(nil)
)

// Config selects the spreadsheet and its tabs.
type Config struct {
	SpreadsheetID string
	ClientsSheet  string
	PaymentsSheet string
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID plus service account credentials.
// Optional sheet names: GOOGLE_CLIENTS_SHEET_NAME (default "Clientes"),
// GOOGLE_PAYMENTS_SHEET_NAME (default "Pagos").
func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg := Config{
		SpreadsheetID: strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		ClientsSheet:  strings.TrimSpace(os.Getenv("GOOGLE_CLIENTS_SHEET_NAME")),
		PaymentsSheet: strings.TrimSpace(os.Getenv("GOOGLE_PAYMENTS_SHEET_NAME")),
	}
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	opts, err := credentialOptions(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// New creates a client with explicit options, e.g. an endpoint override in tests.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.ClientsSheet == "" {
		cfg.ClientsSheet = DefaultClientsSheet
	}
	if cfg.PaymentsSheet == "" {
		cfg.PaymentsSheet = DefaultPaymentsSheet
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		clientsSheet:  cfg.ClientsSheet,
		paymentsSheet: cfg.PaymentsSheet,
	}, nil
}

// credentialOptions reads service account credentials from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, in that order.
func credentialOptions(ctx context.Context) ([]goption.ClientOption, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

// ReadClientRows returns the roster tab, header row included.
func (c *Client) ReadClientRows(ctx context.Context) ([][]string, error) {
	rng := sheetRange(c.clientsSheet, "A1:J")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read clients range %s: %w", rng, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		rows = append(rows, toStrings(r))
	}
	slog.InfoContext(ctx, "Read client rows from sheet", "range", rng, "rows", len(rows))
	return rows, nil
}

// AppendPayment adds one row to the payments tab and returns the updated range.
func (c *Client) AppendPayment(ctx context.Context, row ports.PaymentRow) (string, error) {
	if err := row.Payment.Validate(); err != nil {
		return "", err
	}
	rng := sheetRange(c.paymentsSheet, "A:H")
	vr := &gsheet.ValueRange{Values: [][]interface{}{paymentValues(row)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append payment row: %w", err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Payment appended to sheet", "payment_id", row.Payment.ID, "range", ref)
	return ref, nil
}
