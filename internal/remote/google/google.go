// Package google stores goals in a Google Sheets tab, one goal per row.
//
// Columns A..G hold id, name, category, targetAmount, savedAmount, deadline
// and createdAt; row 1 is a header.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"goalplanner/internal/cache"
	"goalplanner/internal/core"
	"goalplanner/internal/remote"
)

const (
	DefaultSheetName = "Goals"
	columns          = 7
)

var _ remote.Client = (*Client)(nil)

var ErrMissingSpreadsheetID = errors.New("missing GOOGLE_SPREADSHEET_ID")

type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	log           *slog.Logger

	// sheetIDs maps tab titles to their numeric ids, needed for row deletes.
	sheetIDs *cache.LRU[string, int64]
}

// New creates a Sheets client. When opts is empty the service account
// credentials from cfg (or GOOGLE_APPLICATION_CREDENTIALS) are used.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, ErrMissingSpreadsheetID
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(opts) == 0 {
		creds, err := readCredentials(ctx, cfg, logger)
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
	return &Client{
		svc:           svc,
		spreadsheetID: id,
		sheet:         sheet,
		log:           logger,
		sheetIDs:      cache.NewLRU[string, int64](8, time.Hour),
	}, nil
}

func readCredentials(ctx context.Context, cfg Config, logger *slog.Logger) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline service account credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) FetchAll(ctx context.Context) ([]core.Goal, error) {
	rows, err := c.readRows(ctx, "fetch_all")
	if err != nil {
		return nil, err
	}
	goals := make([]core.Goal, 0, len(rows))
	for i, row := range rows {
		g, err := rowToGoal(row)
		if err != nil {
			c.log.WarnContext(ctx, "Skipping malformed goal row", "sheet", c.sheet, "row", i+2, "error", err)
			continue
		}
		goals = append(goals, g)
	}
	return goals, nil
}

func (c *Client) Create(ctx context.Context, d core.Draft) (core.Goal, error) {
	g := d.Goal(uuid.NewString())
	vr := &gsheet.ValueRange{Values: [][]any{goalToRow(g)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.rng("A:G"), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return core.Goal{}, classify("create", err)
	}
	return g, nil
}

func (c *Client) Patch(ctx context.Context, id string, p core.Patch) (core.Goal, error) {
	row, current, err := c.find(ctx, "patch", id)
	if err != nil {
		return core.Goal{}, err
	}
	return c.writeRow(ctx, "patch", row, p.Apply(current))
}

func (c *Client) Replace(ctx context.Context, id string, g core.Goal) (core.Goal, error) {
	row, _, err := c.find(ctx, "replace", id)
	if err != nil {
		return core.Goal{}, err
	}
	g.ID = id
	return c.writeRow(ctx, "replace", row, g)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	row, _, err := c.find(ctx, "delete", id)
	if err != nil {
		return err
	}
	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row - 1),
			EndIndex:   int64(row),
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return classify("delete", err)
	}
	return nil
}

func (c *Client) readRows(ctx context.Context, op string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rng("A2:G")).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, classify(op, err)
	}
	return resp.Values, nil
}

// find returns the 1-based sheet row holding id.
func (c *Client) find(ctx context.Context, op, id string) (int, core.Goal, error) {
	rows, err := c.readRows(ctx, op)
	if err != nil {
		return 0, core.Goal{}, err
	}
	for i, row := range rows {
		if len(row) == 0 || cellString(row[0]) != id {
			continue
		}
		g, err := rowToGoal(row)
		if err != nil {
			return 0, core.Goal{}, remote.ServerError(op, http.StatusUnprocessableEntity, err)
		}
		return i + 2, g, nil
	}
	return 0, core.Goal{}, remote.ServerError(op, http.StatusNotFound, fmt.Errorf("goal %q not found", id))
}

func (c *Client) writeRow(ctx context.Context, op string, row int, g core.Goal) (core.Goal, error) {
	vr := &gsheet.ValueRange{Values: [][]any{goalToRow(g)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rng(fmt.Sprintf("A%d:G%d", row, row)), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return core.Goal{}, classify(op, err)
	}
	return g, nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	if id, ok := c.sheetIDs.Get(c.sheet); ok {
		return id, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, classify("delete", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheet {
			c.sheetIDs.Set(c.sheet, s.Properties.SheetId)
			return s.Properties.SheetId, nil
		}
	}
	return 0, remote.ServerError("delete", http.StatusNotFound, fmt.Errorf("sheet %q not found", c.sheet))
}

func (c *Client) rng(cells string) string {
	return fmt.Sprintf("'%s'!%s", c.sheet, cells)
}

// classify maps API failures to the remote error taxonomy.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return remote.ServerError(op, gerr.Code, err)
	}
	return remote.NetworkError(op, err)
}

func goalToRow(g core.Goal) []any {
	return []any{
		g.ID,
		g.Name,
		g.Category,
		g.TargetAmount.InexactFloat64(),
		g.SavedAmount.InexactFloat64(),
		g.Deadline.String(),
		g.CreatedAt.String(),
	}
}

func rowToGoal(row []any) (core.Goal, error) {
	cells := make([]any, columns)
	copy(cells, row)

	g := core.Goal{
		ID:       cellString(cells[0]),
		Name:     cellString(cells[1]),
		Category: cellString(cells[2]),
	}
	if g.ID == "" {
		return core.Goal{}, errors.New("empty id")
	}
	var err error
	if g.TargetAmount, err = cellMoney(cells[3]); err != nil {
		return core.Goal{}, fmt.Errorf("targetAmount: %w", err)
	}
	if g.SavedAmount, err = cellMoney(cells[4]); err != nil {
		return core.Goal{}, fmt.Errorf("savedAmount: %w", err)
	}
	if g.Deadline, err = core.ParseDate(cellString(cells[5])); err != nil {
		return core.Goal{}, fmt.Errorf("deadline: %w", err)
	}
	if s := cellString(cells[6]); s != "" {
		if g.CreatedAt, err = core.ParseDate(s); err != nil {
			return core.Goal{}, fmt.Errorf("createdAt: %w", err)
		}
	}
	return g, nil
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func cellMoney(v any) (core.Money, error) {
	switch x := v.(type) {
	case nil:
		return core.Zero(), nil
	case float64:
		return core.NewMoney(decimal.NewFromFloat(x)), nil
	default:
		s := cellString(x)
		if s == "" {
			return core.Zero(), nil
		}
		return core.ParseMoney(s)
	}
}
