// Package docreader is the read_document tool: extracts plain text from
// binary document formats (PDF, Word, Excel) that read_file cannot handle
// as UTF-8 text, grounded on the teacher's native binary document parsers.
package docreader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/pathguard"
	"github.com/aiwhisperer/core/pkg/tool"
)

// ReadDocumentArgs defines the parameters for reading a binary document.
type ReadDocumentArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to a .pdf, .docx, or .xlsx file, relative to the agent workspace"`
}

// ReadDocument is the read_document tool.
type ReadDocument struct {
	guard *pathguard.Guard
}

// NewReadDocument creates the read_document tool rooted at guard's
// workspace.
func NewReadDocument(guard *pathguard.Guard) *ReadDocument {
	return &ReadDocument{guard: guard}
}

func (t *ReadDocument) Name() string          { return "read_document" }
func (t *ReadDocument) RequiresApproval() bool { return false }

func (t *ReadDocument) Description() string {
	return "Extract plain text content from a PDF, Word (.docx), or Excel (.xlsx) document in the workspace."
}

func (t *ReadDocument) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to a .pdf, .docx, or .xlsx file, relative to the agent workspace",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadDocument) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, aiwerrors.New(aiwerrors.KindInvalidArguments, "path is required")
	}

	fullPath, err := t.guard.Resolve(path)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindInvalidArguments, "resolve path", err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "stat document", err)
	}

	start := time.Now()
	var result *ParseResult
	switch strings.ToLower(filepath.Ext(fullPath)) {
	case ".pdf":
		result, err = parsePDF(fullPath, info.Size())
	case ".docx":
		result, err = parseWordDocument(fullPath)
	case ".xlsx":
		result, err = parseExcelDocument(fullPath)
	default:
		return nil, aiwerrors.New(aiwerrors.KindInvalidArguments,
			fmt.Sprintf("unsupported document format: %s (supported: .pdf, .docx, .xlsx)", filepath.Ext(fullPath)))
	}
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "parse document", err)
	}

	return map[string]any{
		"path":               path,
		"content":            result.Content,
		"title":              result.Title,
		"pages":              result.Pages,
		"word_count":         len(strings.Fields(result.Content)),
		"processing_time_ms": time.Since(start).Milliseconds(),
	}, nil
}

// ParseResult is the text and metadata extracted from one document.
type ParseResult struct {
	Content string
	Title   string
	Pages   int
}

func parsePDF(path string, size int64) (*ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := pdf.NewReader(file, size)
	if err != nil {
		return nil, err
	}

	var parts []string
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	return &ParseResult{
		Content: strings.Join(parts, "\n\n"),
		Title:   filepath.Base(path),
		Pages:   totalPages,
	}, nil
}

func parseWordDocument(path string) (*ParseResult, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	paragraphs := len(strings.Split(content, "\n\n"))

	return &ParseResult{
		Content: content,
		Title:   filepath.Base(path),
		Pages:   paragraphs,
	}, nil
}

func parseExcelDocument(path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var parts []string
	sheets := f.GetSheetList()
	for _, sheetName := range sheets {
		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			sheetText.WriteString(fmt.Sprintf("Error reading sheet: %v\n", err))
			continue
		}

		cellCount := 0
		for rowIndex, row := range rows {
			if cellCount >= 1000 {
				sheetText.WriteString("... (truncated)\n")
				break
			}
			for colIndex, cell := range row {
				if cellCount >= 1000 {
					break
				}
				if text := strings.TrimSpace(cell); text != "" {
					cellRef := fmt.Sprintf("%s%d", string(rune('A'+colIndex)), rowIndex+1)
					sheetText.WriteString(fmt.Sprintf("%s: %s\n", cellRef, text))
					cellCount++
				}
			}
		}
		if text := strings.TrimSpace(sheetText.String()); text != "" {
			parts = append(parts, text)
		}
	}

	return &ParseResult{
		Content: strings.Join(parts, "\n\n"),
		Title:   filepath.Base(path),
		Pages:   len(sheets),
	}, nil
}

var _ tool.CallableTool = (*ReadDocument)(nil)
