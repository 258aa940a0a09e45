package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"finpilot/database"
	"finpilot/middleware"
	"finpilot/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExportHandler 导出处理器
type ExportHandler struct{}

// NewExportHandler 创建导出处理器
func NewExportHandler() *ExportHandler {
	return &ExportHandler{}
}

// parseExportRange 解析导出时间范围参数
func parseExportRange(c *gin.Context) (start, end time.Time, startStr, endStr string, ok bool) {
	startStr = c.Query("start_date")
	endStr = c.Query("end_date")

	if startStr == "" || endStr == "" {
		BadRequest(c, "请提供开始日期和结束日期")
		return
	}

	start, err := time.ParseInLocation("2006-01-02", startStr, time.Local)
	if err != nil {
		BadRequest(c, "开始日期格式错误，应为: 2006-01-02")
		return
	}
	end, err = time.ParseInLocation("2006-01-02", endStr, time.Local)
	if err != nil {
		BadRequest(c, "结束日期格式错误，应为: 2006-01-02")
		return
	}
	ok = true
	return
}

// loadExportData 查询范围内的交易及类别名映射
func loadExportData(c *gin.Context, userID uint, start, end time.Time) ([]models.Transaction, map[uint]string, bool) {
	var transactions []models.Transaction
	if err := database.DB.Where("user_id = ? AND date >= ? AND date <= ?",
		userID, start.Format("2006-01-02"), end.Format("2006-01-02")).
		Order("date DESC, id DESC").
		Find(&transactions).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询数据失败"))
		return nil, nil, false
	}

	var categories []models.Category
	if err := database.DB.Where("user_id = ?", userID).Find(&categories).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询类别失败"))
		return nil, nil, false
	}
	names := make(map[uint]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}
	return transactions, names, true
}

func categoryName(names map[uint]string, categoryID *uint) string {
	if categoryID == nil {
		return "未分类"
	}
	if name, ok := names[*categoryID]; ok {
		return name
	}
	return "未分类"
}

// ExportCSV 导出交易为 CSV
// @Summary 导出交易为 CSV
// @Description 按日期范围导出当前用户的交易为 CSV 文件
// @Tags 导出
// @Accept json
// @Produce text/csv
// @Security BearerAuth
// @Param start_date query string true "开始日期 (2024-01-01)"
// @Param end_date query string true "结束日期 (2024-12-31)"
// @Success 200 {file} file "CSV 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/csv [get]
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	start, end, startStr, endStr, ok := parseExportRange(c)
	if !ok {
		return
	}

	transactions, names, ok := loadExportData(c, userID, start, end)
	if !ok {
		return
	}

	buf := new(bytes.Buffer)
	// 添加 BOM 以支持 Excel 中文显示
	buf.WriteString("\xEF\xBB\xBF")

	writer := csv.NewWriter(buf)

	headers := []string{"ID", "日期", "金额", "商户", "类别", "锁定", "待入账", "创建时间"}
	if err := writer.Write(headers); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}

	for _, tx := range transactions {
		locked := "否"
		if tx.CategoryLocked {
			locked = "是"
		}
		pending := "否"
		if tx.Pending {
			pending = "是"
		}
		row := []string{
			fmt.Sprintf("%d", tx.ID),
			tx.Date.Format("2006-01-02"),
			tx.Amount.StringFixed(2),
			tx.Merchant,
			categoryName(names, tx.CategoryID),
			locked,
			pending,
			tx.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writer.Write(row); err != nil {
			InternalError(c, "生成 CSV 失败")
			return
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}

	filename := fmt.Sprintf("transactions_%s_%s.csv", startStr, endStr)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Length", fmt.Sprintf("%d", buf.Len()))

	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportExcel 导出交易为 Excel
// @Summary 导出交易为 Excel
// @Description 按日期范围导出当前用户的交易为 xlsx 文件，末尾带净额汇总行
// @Tags 导出
// @Accept json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param start_date query string true "开始日期 (2024-01-01)"
// @Param end_date query string true "结束日期 (2024-12-31)"
// @Success 200 {file} file "Excel 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/excel [get]
func (h *ExportHandler) ExportExcel(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	start, end, startStr, endStr, ok := parseExportRange(c)
	if !ok {
		return
	}

	transactions, names, ok := loadExportData(c, userID, start, end)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "交易记录"
	f.SetSheetName("Sheet1", sheetName)

	// 表头样式
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})

	// 数据样式
	dataStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})

	// 列宽
	f.SetColWidth(sheetName, "A", "A", 10)
	f.SetColWidth(sheetName, "B", "B", 14)
	f.SetColWidth(sheetName, "C", "C", 12)
	f.SetColWidth(sheetName, "D", "D", 30)
	f.SetColWidth(sheetName, "E", "E", 20)
	f.SetColWidth(sheetName, "F", "F", 10)
	f.SetColWidth(sheetName, "G", "G", 20)

	headers := []string{"ID", "日期", "金额", "商户", "类别", "待入账", "创建时间"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	// 正负相抵后的净额
	netAmount := decimal.Zero
	for i, tx := range transactions {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), tx.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), tx.Date.Format("2006-01-02"))
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), tx.Amount.InexactFloat64())
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), tx.Merchant)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), categoryName(names, tx.CategoryID))
		pending := "否"
		if tx.Pending {
			pending = "是"
		}
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), pending)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), tx.CreatedAt.Format("2006-01-02 15:04:05"))

		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), dataStyle)
		netAmount = netAmount.Add(tx.Amount)
	}

	// 汇总行
	summaryRow := len(transactions) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})

	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow), "净额")
	f.MergeCell(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("B%d", summaryRow))
	f.SetCellValue(sheetName, fmt.Sprintf("C%d", summaryRow), netAmount.InexactFloat64())
	f.SetCellValue(sheetName, fmt.Sprintf("D%d", summaryRow), fmt.Sprintf("共 %d 条记录", len(transactions)))
	f.MergeCell(sheetName, fmt.Sprintf("D%d", summaryRow), fmt.Sprintf("G%d", summaryRow))
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("G%d", summaryRow), summaryStyle)

	filename := fmt.Sprintf("transactions_%s_%s.xlsx", startStr, endStr)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", filename))

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "生成 Excel 失败")
		return
	}
}

// ExportJSON 导出交易为 JSON
// @Summary 导出交易为 JSON
// @Description 按日期范围导出当前用户的交易为 JSON，附带净额汇总
// @Tags 导出
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param start_date query string true "开始日期 (2024-01-01)"
// @Param end_date query string true "结束日期 (2024-12-31)"
// @Success 200 {object} Response{data=[]models.Transaction} "导出成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/json [get]
func (h *ExportHandler) ExportJSON(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	start, end, startStr, endStr, ok := parseExportRange(c)
	if !ok {
		return
	}

	transactions, _, ok := loadExportData(c, userID, start, end)
	if !ok {
		return
	}

	netAmount := decimal.Zero
	for _, tx := range transactions {
		netAmount = netAmount.Add(tx.Amount)
	}

	Success(c, gin.H{
		"start_date":   startStr,
		"end_date":     endStr,
		"total_count":  len(transactions),
		"net_amount":   netAmount.StringFixed(2),
		"transactions": transactions,
	})
}
