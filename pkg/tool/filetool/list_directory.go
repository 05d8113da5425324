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
	"sort"
	"strings"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
	"github.com/aiwhisperer/core/pkg/pathguard"
	"github.com/aiwhisperer/core/pkg/tool"
)

// ListDirectoryArgs defines the parameters for listing a directory.
type ListDirectoryArgs struct {
	Path          string `json:"path,omitempty" jsonschema:"description=Directory to list, relative to the agent workspace. Defaults to the workspace root.,default=."`
	Recursive     bool   `json:"recursive,omitempty" jsonschema:"description=List subdirectories recursively,default=false"`
	MaxDepth      int    `json:"max_depth,omitempty" jsonschema:"description=Maximum depth for recursive listing,default=3,minimum=1,maximum=10"`
	IncludeHidden bool   `json:"include_hidden,omitempty" jsonschema:"description=Include hidden files/directories (names starting with '.'),default=false"`
}

// DirEntry describes one listed file or directory.
type DirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "directory"
	Size int64  `json:"size,omitempty"`
	Depth int   `json:"depth,omitempty"`
}

// ListDirectory is the list_directory tool: a structured, optionally
// recursive listing of workspace directory contents.
type ListDirectory struct {
	guard *pathguard.Guard
}

// NewListDirectory creates the list_directory tool rooted at guard's
// workspace.
func NewListDirectory(guard *pathguard.Guard) *ListDirectory {
	return &ListDirectory{guard: guard}
}

func (t *ListDirectory) Name() string          { return "list_directory" }
func (t *ListDirectory) RequiresApproval() bool { return false }

func (t *ListDirectory) Description() string {
	return "List the contents of a workspace directory, optionally recursively, as a structured entry list."
}

func (t *ListDirectory) Schema() map[string]any {
	return schemaFor[ListDirectoryArgs]()
}

func (t *ListDirectory) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var a ListDirectoryArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		a.Path = "."
	}
	maxDepth := a.MaxDepth
	if maxDepth == 0 {
		maxDepth = 3
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 10 {
		maxDepth = 10
	}

	target, err := t.guard.Resolve(a.Path)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindInvalidArguments, "resolve path", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "stat directory", err)
	}
	if !info.IsDir() {
		return nil, aiwerrors.New(aiwerrors.KindInvalidArguments, fmt.Sprintf("path %q is not a directory", a.Path))
	}

	var entries []DirEntry
	if a.Recursive {
		entries, err = listRecursive(target, target, maxDepth, a.IncludeHidden, 0)
	} else {
		entries, err = listFlat(target, target, a.IncludeHidden)
	}
	if err != nil {
		return nil, aiwerrors.Wrap(aiwerrors.KindToolExecution, "list directory", err)
	}

	totalFiles, totalDirs := 0, 0
	for _, e := range entries {
		if e.Type == "file" {
			totalFiles++
		} else {
			totalDirs++
		}
	}

	result := map[string]any{
		"path":               a.Path,
		"entries":            entries,
		"total_files":        totalFiles,
		"total_directories":  totalDirs,
		"recursive":          a.Recursive,
	}
	if a.Recursive {
		result["max_depth"] = maxDepth
	}
	return result, nil
}

func listFlat(dir, workspaceRoot string, includeHidden bool) ([]DirEntry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sortDirEntries(items)

	var entries []DirEntry
	for _, item := range items {
		if !includeHidden && strings.HasPrefix(item.Name(), ".") {
			continue
		}
		entries = append(entries, toDirEntry(dir, workspaceRoot, item))
	}
	return entries, nil
}

func listRecursive(dir, workspaceRoot string, maxDepth int, includeHidden bool, depth int) ([]DirEntry, error) {
	if depth > maxDepth {
		return nil, nil
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sortDirEntries(items)

	var entries []DirEntry
	for _, item := range items {
		if !includeHidden && strings.HasPrefix(item.Name(), ".") {
			continue
		}
		e := toDirEntry(dir, workspaceRoot, item)
		e.Depth = depth
		entries = append(entries, e)

		if item.IsDir() && depth < maxDepth {
			sub, err := listRecursive(filepath.Join(dir, item.Name()), workspaceRoot, maxDepth, includeHidden, depth+1)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		}
	}
	return entries, nil
}

func sortDirEntries(items []os.DirEntry) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir() != items[j].IsDir() {
			return items[i].IsDir()
		}
		return strings.ToLower(items[i].Name()) < strings.ToLower(items[j].Name())
	})
}

func toDirEntry(dir, workspaceRoot string, item os.DirEntry) DirEntry {
	full := filepath.Join(dir, item.Name())
	rel, err := filepath.Rel(workspaceRoot, full)
	if err != nil {
		rel = item.Name()
	}
	e := DirEntry{Name: item.Name(), Path: rel, Type: "file"}
	if item.IsDir() {
		e.Type = "directory"
		return e
	}
	if info, err := item.Info(); err == nil {
		e.Size = info.Size()
	}
	return e
}

var _ tool.CallableTool = (*ListDirectory)(nil)
