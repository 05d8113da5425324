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
	"path/filepath"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/pathguard"
	"github.com/aiwhisperer/core/pkg/tool"
)

// WriteFileArgs defines the parameters for writing a file.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the agent workspace"`
	Content string `json:"content" jsonschema:"required,description=Content to write to the file"`
	Backup  bool   `json:"backup,omitempty" jsonschema:"description=Create a .bak backup if the file already exists,default=true"`
}

// WriteFile is the write_file tool: creates or overwrites a workspace
// file, optionally backing up the previous contents.
type WriteFile struct {
	guard             *pathguard.Guard
	maxContentSize    int
	allowedExtensions map[string]bool
	deniedExtensions  map[string]bool
}

// WriteFileConfig configures extension allow/deny lists and size limits
// for the write_file tool.
type WriteFileConfig struct {
	MaxContentSize    int
	AllowedExtensions []string
	DeniedExtensions  []string
}

// NewWriteFile creates the write_file tool rooted at guard's workspace.
func NewWriteFile(guard *pathguard.Guard, cfg WriteFileConfig) *WriteFile {
	if cfg.MaxContentSize == 0 {
		cfg.MaxContentSize = 1024 * 1024
	}
	w := &WriteFile{
		guard:          guard,
		maxContentSize: cfg.MaxContentSize,
	}
	if len(cfg.AllowedExtensions) > 0 {
		w.allowedExtensions = make(map[string]bool, len(cfg.AllowedExtensions))
		for _, ext := range cfg.AllowedExtensions {
			w.allowedExtensions[ext] = true
		}
	}
	if len(cfg.DeniedExtensions) > 0 {
		w.deniedExtensions = make(map[string]bool, len(cfg.DeniedExtensions))
		for _, ext := range cfg.DeniedExtensions {
			w.deniedExtensions[ext] = true
		}
	}
	return w
}

func (t *WriteFile) Name() string          { return "write_file" }
func (t *WriteFile) RequiresApproval() bool { return true }

func (t *WriteFile) Description() string {
	return "Create a new file or overwrite an existing file in the workspace with content. Supports backups and extension allow/deny lists."
}

func (t *WriteFile) Schema() map[string]any {
	return schemaFor[WriteFileArgs]()
}

func (t *WriteFile) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var a WriteFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	if len(a.Content) > t.maxContentSize {
		return nil, aiwerrors.New(aiwerrors.KindInvalidArguments,
			fmt.Sprintf("content too large: %d bytes (max: %d)", len(a.Content), t.maxContentSize))
	}
	if err := t.checkExtension(a.Path); err != nil {
		return nil, err
	}

	fullPath, err := t.guard.Resolve(a.Path)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindInvalidArguments, "resolve path", err)
	}

	backup := true
	if v, ok := args["backup"].(bool); ok {
		backup = v
	}

	fileExisted := false
	if _, err := os.Stat(fullPath); err == nil {
		fileExisted = true
		if backup {
			if err := copyFile(fullPath, fullPath+".bak"); err != nil {
				return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "create backup", err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "create parent directory", err)
	}
	if err := os.WriteFile(fullPath, []byte(a.Content), 0644); err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "write file", err)
	}

	action := "created"
	if fileExisted {
		action = "overwritten"
	}
	message := fmt.Sprintf("File %s successfully: %s (%d bytes)", action, a.Path, len(a.Content))
	if fileExisted && backup {
		message += fmt.Sprintf("\nBackup created: %s.bak", a.Path)
	}

	return map[string]any{
		"message":      message,
		"path":         a.Path,
		"size":         len(a.Content),
		"backed_up":    fileExisted && backup,
		"file_existed": fileExisted,
		"action":       action,
	}, nil
}

func (t *WriteFile) checkExtension(path string) error {
	ext := filepath.Ext(path)
	if len(t.deniedExtensions) > 0 {
		if t.deniedExtensions[ext] {
			if ext == "" {
				return aiwerrors.New(aiwerrors.KindInvalidArguments, "extensionless files are explicitly denied")
			}
			return aiwerrors.New(aiwerrors.KindInvalidArguments, fmt.Sprintf("file extension %s is explicitly denied", ext))
		}
	}
	if len(t.allowedExtensions) > 0 && !t.allowedExtensions[ext] {
		if ext == "" {
			return aiwerrors.New(aiwerrors.KindInvalidArguments, "extensionless files not allowed")
		}
		return aiwerrors.New(aiwerrors.KindInvalidArguments, fmt.Sprintf("file extension %s not allowed", ext))
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

var _ tool.CallableTool = (*WriteFile)(nil)
