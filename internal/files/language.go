package files

import (
	"path/filepath"
	"strings"
)

// languages maps file extensions (and a few well-known file names) to
// Prism.js syntax highlighting identifiers.
var languages = map[string]string{
	// Web
	"js": "javascript", "jsx": "jsx", "ts": "typescript", "tsx": "tsx",
	"html": "html", "htm": "html", "css": "css", "scss": "scss", "sass": "sass", "less": "less",

	// Python
	"py": "python", "pyx": "python", "pyw": "python",

	// Data formats
	"json": "json", "xml": "xml", "yaml": "yaml", "yml": "yaml", "toml": "toml",
	"ini": "ini", "csv": "csv",

	// Markup
	"md": "markdown", "markdown": "markdown", "rst": "rest", "tex": "latex",

	// Shell
	"sh": "bash", "bash": "bash", "zsh": "bash", "fish": "bash", "ps1": "powershell",

	// Databases
	"sql": "sql", "sqlite": "sql", "mysql": "sql", "pgsql": "sql",

	// Config
	"conf": "apache", "htaccess": "apache", "nginx": "nginx", "dockerfile": "docker",

	// Programming languages
	"php": "php", "rb": "ruby", "go": "go", "rs": "rust",
	"cpp": "cpp", "cxx": "cpp", "cc": "cpp", "hpp": "cpp", "c": "c", "h": "c",
	"java": "java", "cs": "csharp", "swift": "swift", "kt": "kotlin", "scala": "scala",
	"dart": "dart", "r": "r", "lua": "lua", "perl": "perl", "pl": "perl",

	// Functional
	"hs": "haskell", "elm": "elm", "clj": "clojure", "ml": "ocaml", "fs": "fsharp",

	// Other
	"vim": "vim", "diff": "diff", "patch": "diff", "log": "log",
	"makefile": "makefile", "cmake": "cmake", "gradle": "gradle", "properties": "properties",
	"gitignore": "git", "gitconfig": "git",
}

// LanguageFor returns the highlighting language for a path, or "text".
// Extension-less names such as Dockerfile or Makefile are looked up by name.
func LanguageFor(path string) string {
	base := strings.ToLower(filepath.Base(path))
	key := strings.TrimPrefix(filepath.Ext(base), ".")
	if key == "" {
		key = strings.TrimPrefix(base, ".")
	}
	if lang, ok := languages[key]; ok {
		return lang
	}
	return "text"
}
