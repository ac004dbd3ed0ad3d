package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"talentbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// PayoutBatchWriter produces the xlsx file the finance team uploads to
// the bank: one row per approved withdrawal, amounts in both coins and
// naira.
type PayoutBatchWriter struct {
	exportPath  string
	coinRateNGN int64
	logger      *zerolog.Logger
}

func NewPayoutBatchWriter(exportPath string, coinRateNGN int64, logger *zerolog.Logger) *PayoutBatchWriter {
	return &PayoutBatchWriter{
		exportPath:  exportPath,
		coinRateNGN: coinRateNGN,
		logger:      logger,
	}
}

// WriteBatch writes the given approved withdrawals to a dated xlsx
// file and returns its path.
func (w *PayoutBatchWriter) WriteBatch(payouts []*models.WithdrawalRequest) (string, error) {
	if err := os.MkdirAll(w.exportPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Payouts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Request ID", "Talent ID", "Coins", "Amount (NGN)", "Bank", "Account Number", "Account Name", "Processed At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle)

	row := 2
	for _, payout := range payouts {
		if payout.Status != models.ResolutionApproved {
			continue
		}
		processedAt := ""
		if payout.ProcessedAt != nil {
			processedAt = payout.ProcessedAt.Format("2006-01-02 15:04:05")
		}
		values := []interface{}{
			payout.ID,
			payout.TalentID,
			payout.Amount,
			payout.Amount * w.coinRateNGN,
			payout.Bank.BankName,
			payout.Bank.AccountNumber,
			payout.Bank.AccountName,
			processedAt,
		}
		for i, value := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "B", 30)
	_ = f.SetColWidth(sheetName, "C", "H", 20)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("payout_batch_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	filePath := filepath.Join(w.exportPath, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	w.logger.Info().Str("file_path", filePath).Int("rows", row-2).Msg("payout batch created")
	return filePath, nil
}
