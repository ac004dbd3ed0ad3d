package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"talentbook/internal/events"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// PayoutSheetsService appends approved withdrawals to the finance
// spreadsheet. The sheet is an instruction list for whoever runs the
// bank transfers, so each row carries the full bank details and the
// naira value of the payout.
type PayoutSheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	coinRateNGN   int64
}

func NewPayoutSheetsService(credentialsFile, spreadsheetID string, coinRateNGN int64) (*PayoutSheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &PayoutSheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		coinRateNGN:   coinRateNGN,
	}, nil
}

// TestConnection reads the header cell so startup fails fast on a
// missing share or bad credentials.
func (s *PayoutSheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Payouts!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail returns the account that must be granted
// editor access on the spreadsheet.
func (s *PayoutSheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// AppendPayout adds one approved withdrawal as a new row. Appends are
// idempotent enough for at-least-once delivery: the request id in
// column A lets finance spot duplicates.
func (s *PayoutSheetsService) AppendPayout(ctx context.Context, payout events.WithdrawalPayload) error {
	processedAt := ""
	if payout.ProcessedAt != nil {
		processedAt = payout.ProcessedAt.Format("2006-01-02 15:04:05")
	}

	row := []interface{}{
		payout.RequestID,
		payout.TalentID,
		payout.Amount,
		payout.Amount * s.coinRateNGN,
		payout.Bank.BankName,
		payout.Bank.AccountNumber,
		payout.Bank.AccountName,
		payout.AdminNotes,
		processedAt,
		time.Now().Format("2006-01-02 15:04:05"),
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{row},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, "Payouts!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()

	return err
}
