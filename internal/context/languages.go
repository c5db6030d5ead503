package context

import (
	"path/filepath"
	"strings"
)

// fenceLanguages maps file extensions to the info string used on the code
// fence around a file's content. Unknown extensions get a bare fence.
var fenceLanguages = map[string]string{
	".go":      "go",
	".rb":      "ruby",
	".py":      "python",
	".js":      "javascript",
	".mjs":     "javascript",
	".cjs":     "javascript",
	".ts":      "typescript",
	".mts":     "typescript",
	".cts":     "typescript",
	".tsx":     "tsx",
	".jsx":     "jsx",
	".rs":      "rust",
	".java":    "java",
	".kt":      "kotlin",
	".cs":      "csharp",
	".cpp":     "cpp",
	".cc":      "cpp",
	".cxx":     "cpp",
	".hpp":     "cpp",
	".c":       "c",
	".h":       "c",
	".swift":   "swift",
	".php":     "php",
	".scala":   "scala",
	".ex":      "elixir",
	".exs":     "elixir",
	".hs":      "haskell",
	".lua":     "lua",
	".sh":      "bash",
	".bash":    "bash",
	".zsh":     "bash",
	".sql":     "sql",
	".html":    "html",
	".htm":     "html",
	".css":     "css",
	".scss":    "scss",
	".sass":    "scss",
	".vue":     "vue",
	".svelte":  "svelte",
	".json":    "json",
	".yaml":    "yaml",
	".yml":     "yaml",
	".toml":    "toml",
	".xml":     "xml",
	".md":      "markdown",
	".mdx":     "markdown",
	".tf":      "terraform",
	".proto":   "protobuf",
	".graphql": "graphql",
	".gql":     "graphql",
}

// FenceLanguage returns the code fence info string for path, or "".
func FenceLanguage(path string) string {
	name := filepath.Base(path)
	switch name {
	case "Dockerfile":
		return "dockerfile"
	case "Makefile", "GNUmakefile":
		return "makefile"
	}
	return fenceLanguages[strings.ToLower(filepath.Ext(name))]
}
