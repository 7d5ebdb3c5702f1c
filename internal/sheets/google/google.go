// Package google mirrors ledger changes into a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

// Header is the first row of every ledger sheet.
var Header = []any{"Expense ID", "User", "Date", "Amount", "Category", "Note", "Payment", "Action", "Recorded At"}

const valueInput = "USER_ENTERED"

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID string
	// SheetName is the base tab name; the current year is prefixed unless the
	// name already starts with one.
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	now           func() time.Time
	logger        *applog.Logger
}

// New builds a client from service-account credentials in cfg, falling back
// to GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if len(opts) == 0 {
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Ledger"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         yearPrefixedName(base, time.Now().Year()),
		now:           time.Now,
		logger:        applog.FromContext(ctx).WithComponent(applog.ComponentSheets),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	if j := strings.TrimSpace(cfg.CredentialsJSON); j != "" {
		return []byte(j), nil
	}
	file := strings.TrimSpace(cfg.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// SheetName returns the tab rows are written to.
func (c *Client) SheetName() string {
	return c.sheet
}

// EnsureHeader writes the header row when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:I1", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", c.sheet, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{Header}}).
		ValueInputOption(valueInput).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", c.sheet, err)
	}
	c.logger.InfoContext(ctx, "Wrote ledger sheet header", "sheet", c.sheet)
	return nil
}

// AppendExpense appends one row describing e and returns the written range.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense, action string) (string, error) {
	return c.append(ctx, ExpenseRow(e, action, c.now()))
}

// AppendDeletion appends a tombstone row for an expense that no longer exists.
func (c *Client) AppendDeletion(ctx context.Context, id int64, userID string) (string, error) {
	return c.append(ctx, DeletionRow(id, userID, c.now()))
}

func (c *Client) append(ctx context.Context, row []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:I", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption(valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// ExpenseRow renders e in Header column order.
func ExpenseRow(e core.Expense, action string, recordedAt time.Time) []any {
	return []any{
		e.ID,
		e.UserID,
		e.Date.UTC().Format("2006-01-02"),
		e.Amount.StringFixed(2),
		e.Category.String(),
		e.Note,
		string(e.PaymentType),
		action,
		recordedAt.UTC().Format(time.RFC3339),
	}
}

func DeletionRow(id int64, userID string, recordedAt time.Time) []any {
	return []any{id, userID, "", "", "", "", "", "deleted", recordedAt.UTC().Format(time.RFC3339)}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
