// Package export 把查询结果写成 XLSX 或 CSV，第一行为列名
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kasuganosora/orientsql/pkg/orientdb"
	"github.com/xuri/excelize/v2"
)

// Format 导出格式
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// defaultSheet excelize 新建文件自带的工作表
const defaultSheet = "Sheet1"

// Options 导出选项
type Options struct {
	SheetName string
	Delimiter rune
}

func (o Options) withDefaults() Options {
	if o.SheetName == "" {
		o.SheetName = defaultSheet
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	return o
}

// FormatFromPath 按扩展名判断格式
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", filepath.Ext(path))
	}
}

// Write 按格式写出结果集
func Write(w io.Writer, format Format, rs *orientdb.ResultSet, opts Options) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, rs, opts)
	case FormatCSV:
		return WriteCSV(w, rs, opts)
	default:
		return fmt.Errorf("unsupported export format: %q", format)
	}
}

// ToFile 写到文件，格式由扩展名决定
func ToFile(path string, rs *orientdb.ResultSet, opts Options) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(f, format, rs, opts)
}

// WriteXLSX 写出单个工作表的 xlsx
func WriteXLSX(w io.Writer, rs *orientdb.ResultSet, opts Options) error {
	opts = opts.withDefaults()

	f := excelize.NewFile()
	defer f.Close()

	if opts.SheetName != defaultSheet {
		if err := f.SetSheetName(defaultSheet, opts.SheetName); err != nil {
			return err
		}
	}
	sheet := opts.SheetName

	// 写入header
	for i, col := range rs.Columns() {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}

	// 写入数据，空值留空
	for i, row := range rs.Rows() {
		for j, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(v)); err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// WriteCSV 写出 csv，空值写成空串
func WriteCSV(w io.Writer, rs *orientdb.ResultSet, opts Options) error {
	opts = opts.withDefaults()

	cw := csv.NewWriter(w)
	cw.Comma = opts.Delimiter

	if err := cw.Write(rs.Columns()); err != nil {
		return err
	}
	for _, row := range rs.Rows() {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = textValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cellValue 嵌套文档和列表写成 JSON 文本
func cellValue(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return textValue(v)
	default:
		return v
	}
}

// textValue 单元格的文本形式
func textValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
