package executor

import "strings"

// DefaultLanguage is used when a request leaves the language empty.
const DefaultLanguage = "java"

// LanguageConfig defines the toolchain settings for a language
type LanguageConfig struct {
	Name       string
	SourceFile string
	MainClass  string
	Compiler   string
	Runtime    string
}

// CompileArgs returns the compiler arguments for the saved source.
func (c LanguageConfig) CompileArgs(sourcePath string) []string {
	return []string{"-encoding", "utf-8", sourcePath}
}

// languageConfigs holds the toolchains the sandbox can build
var languageConfigs = map[string]LanguageConfig{
	"java": {
		Name:       "java",
		SourceFile: "Main.java",
		MainClass:  "Main",
		Compiler:   "javac",
		Runtime:    "java",
	},
}

// GetLanguageConfig retrieves the configuration for a given language
func GetLanguageConfig(language string) (LanguageConfig, bool) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = DefaultLanguage
	}
	config, ok := languageConfigs[language]
	return config, ok
}
