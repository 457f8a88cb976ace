package runtime

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
)

// Grammar returns the tree-sitter grammar scripts may query for a language
// name or common alias.
func Grammar(lang string) (*sitter.Language, bool) {
	switch lang {
	case "cpp", "c++", "cxx":
		return cpp.GetLanguage(), true
	case "c":
		return c.GetLanguage(), true
	case "go", "golang":
		return golang.GetLanguage(), true
	}
	return nil, false
}
