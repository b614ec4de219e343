package pipeline

import (
	"fmt"
	"strings"
)

// Languages names the source and target of a migration.
type Languages struct {
	Source string
	Target string
}

func DefaultLanguages() Languages {
	return Languages{Source: "COBOL", Target: "Python"}
}

// FenceTag is the Markdown code-fence tag used by models for the target.
func (l Languages) FenceTag() string {
	t := strings.ToLower(strings.TrimSpace(l.Target))
	switch t {
	case "c#", "csharp":
		return "csharp"
	case "c++", "cpp":
		return "cpp"
	case "golang":
		return "go"
	}
	return t
}

var fileExts = map[string]string{
	"python":     ".py",
	"java":       ".java",
	"go":         ".go",
	"csharp":     ".cs",
	"cpp":        ".cpp",
	"c":          ".c",
	"typescript": ".ts",
	"javascript": ".js",
	"kotlin":     ".kt",
	"rust":       ".rs",
}

// FileExt is the file extension for translated code.
func (l Languages) FileExt() string {
	if ext, ok := fileExts[l.FenceTag()]; ok {
		return ext
	}
	return ".txt"
}

// sourceExpert is who the model plays when reading the source language.
func (l Languages) sourceExpert() string {
	switch strings.ToLower(l.Source) {
	case "cobol", "pl/i", "pli", "jcl", "rpg", "natural":
		return "an expert Mainframe Engineer"
	}
	return fmt.Sprintf("an expert %s engineer", l.Source)
}

type targetConventions struct {
	decimal string
	typing  string
}

var conventions = map[string]targetConventions{
	"python":     {decimal: "Use 'from decimal import Decimal' for financial precision.", typing: "Use type hinting."},
	"java":       {decimal: "Use java.math.BigDecimal for financial precision.", typing: "Declare explicit types for every field, parameter and return value."},
	"go":         {decimal: "Use github.com/shopspring/decimal for financial precision.", typing: "Use explicit types for every declaration that is not obvious from context."},
	"csharp":     {decimal: "Use the decimal type for financial precision.", typing: "Declare explicit types; avoid var for monetary values."},
	"typescript": {decimal: "Use decimal.js for financial precision.", typing: "Annotate every parameter and return type."},
	"kotlin":     {decimal: "Use java.math.BigDecimal for financial precision.", typing: "Annotate every parameter and return type."},
	"rust":       {decimal: "Use the rust_decimal crate for financial precision.", typing: "Annotate every function signature."},
}

func (l Languages) conventions() targetConventions {
	if c, ok := conventions[l.FenceTag()]; ok {
		return c
	}
	return targetConventions{
		decimal: "Use an arbitrary-precision decimal type for financial precision.",
		typing:  "Use explicit type annotations.",
	}
}

func buildAnalyzePrompt(langs Languages, source string) string {
	return fmt.Sprintf(`
You are %s. Analyze the following %s code.
Explain the business logic, rules, and data structures in simple terms.

%s CODE:
%s
`,
		langs.sourceExpert(), langs.Source,
		strings.ToUpper(langs.Source), source,
	)
}

func buildTranslatePrompt(langs Languages, source, explanation string) string {
	c := langs.conventions()
	return fmt.Sprintf(`
You are a Senior %s Developer.
Using the following %s code and its explanation, write an equivalent %s program.

IMPORTANT REQUIREMENTS:
1. Return ONLY the raw %s code.
2. Do NOT use Markdown backticks (`+"```"+`).
3. %s
4. %s

%s CODE:
%s

EXPLANATION:
%s
`,
		langs.Target,
		langs.Source, langs.Target,
		langs.Target,
		c.decimal,
		c.typing,
		strings.ToUpper(langs.Source), source,
		explanation,
	)
}
