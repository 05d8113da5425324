// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filetool

import (
	"fmt"
	"os"
	"strings"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/pathguard"
	"github.com/aiwhisperer/core/pkg/tool"
)

// ReadFileArgs defines the parameters for reading a file.
type ReadFileArgs struct {
	Path        string `json:"path" jsonschema:"required,description=File path to read, relative to the agent workspace"`
	StartLine   int    `json:"start_line,omitempty" jsonschema:"description=Starting line number (1-indexed),minimum=1"`
	EndLine     int    `json:"end_line,omitempty" jsonschema:"description=Ending line number (inclusive),minimum=1"`
	LineNumbers bool   `json:"line_numbers,omitempty" jsonschema:"description=Include line numbers in output,default=true"`
}

// ReadFile is the read_file tool: reads a workspace file, optionally
// restricted to a line range, with line-numbered output by default.
type ReadFile struct {
	guard       *pathguard.Guard
	maxFileSize int64
}

// NewReadFile creates the read_file tool rooted at guard's workspace.
// maxFileSize of 0 applies a 10MB default.
func NewReadFile(guard *pathguard.Guard, maxFileSize int64) *ReadFile {
	if maxFileSize == 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	return &ReadFile{guard: guard, maxFileSize: maxFileSize}
}

func (t *ReadFile) Name() string          { return "read_file" }
func (t *ReadFile) RequiresApproval() bool { return false }

func (t *ReadFile) Description() string {
	return "Read the contents of a workspace file, with optional line numbers and range selection. Use to understand code structure and context before making edits."
}

func (t *ReadFile) Schema() map[string]any {
	return schemaFor[ReadFileArgs]()
}

func (t *ReadFile) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var a ReadFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	fullPath, err := t.guard.Resolve(a.Path)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindInvalidArguments, "resolve path", err)
	}

	fileInfo, err := os.Stat(fullPath)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "stat file", err)
	}
	if fileInfo.Size() > t.maxFileSize {
		return nil, aiwerrors.New(aiwerrors.KindInvalidArguments,
			fmt.Sprintf("file too large: %d bytes (max: %d)", fileInfo.Size(), t.maxFileSize))
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "read file", err)
	}

	lines := strings.Split(string(content), "\n")
	totalLines := len(lines)

	startLine := 1
	if a.StartLine > 0 {
		startLine = a.StartLine
		if startLine > totalLines {
			return nil, aiwerrors.New(aiwerrors.KindInvalidArguments,
				fmt.Sprintf("start_line (%d) exceeds file length (%d lines)", startLine, totalLines))
		}
	}

	endLine := totalLines
	if a.EndLine > 0 {
		endLine = a.EndLine
		if endLine > totalLines {
			endLine = totalLines
		}
	}
	if startLine > endLine {
		return nil, aiwerrors.New(aiwerrors.KindInvalidArguments,
			fmt.Sprintf("invalid range: start_line (%d) > end_line (%d)", startLine, endLine))
	}

	showLineNumbers := true
	if v, ok := args["line_numbers"].(bool); ok {
		showLineNumbers = v
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("FILE: %s\n", a.Path))
	output.WriteString(fmt.Sprintf("STATS: Total lines: %d", totalLines))
	if startLine != 1 || endLine != totalLines {
		output.WriteString(fmt.Sprintf(" | Showing lines %d-%d", startLine, endLine))
	}
	output.WriteString("\n")
	output.WriteString(strings.Repeat("─", 60) + "\n")

	for i := startLine - 1; i < endLine && i < len(lines); i++ {
		if showLineNumbers {
			output.WriteString(fmt.Sprintf("%6d| %s\n", i+1, lines[i]))
		} else {
			output.WriteString(fmt.Sprintf("%s\n", lines[i]))
		}
	}
	output.WriteString(strings.Repeat("─", 60))

	return map[string]any{
		"content":      output.String(),
		"path":         a.Path,
		"total_lines":  totalLines,
		"start_line":   startLine,
		"end_line":     endLine,
		"lines_shown":  endLine - startLine + 1,
		"file_size":    fileInfo.Size(),
		"line_numbers": showLineNumbers,
	}, nil
}

var _ tool.CallableTool = (*ReadFile)(nil)
