package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/bookrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("book", cel.DynType),
		cel.Variable("interaction", cel.DynType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Eval 是训练数据过滤表达式，使用 CEL (Common Expression Language) 实现。
// 表达式在 Compile 时编译一次，之后可并发调用 Match*。
//
// 可用变量：
//   - book.id / book.title / book.author / book.subjects / book.description / book.cover_url
//   - interaction.user_id / interaction.item_id / interaction.rating
//
// 示例：
//   - `book.description != ""` → 只保留有简介的书
//   - `"scifi" in book.subjects` → 只保留科幻类
//   - `interaction.rating >= 3.0` → 只保留正向评分
type Eval struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；空表达式表示不过滤。
func Compile(expr string) (*Eval, error) {
	if expr == "" {
		return &Eval{}, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env error: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return boolean, got %v", t)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Eval{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (e *Eval) String() string {
	return e.expr
}

// MatchBook 判断一本书是否通过过滤
func (e *Eval) MatchBook(b core.Book) (bool, error) {
	if e == nil || e.prg == nil {
		return true, nil
	}
	subjects := b.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return e.eval(map[string]any{
		"book": map[string]any{
			"id":          b.ID,
			"title":       b.Title,
			"author":      b.Author,
			"subjects":    subjects,
			"description": b.Description,
			"cover_url":   b.CoverURL,
		},
		"interaction": map[string]any{},
	})
}

// MatchInteraction 判断一条评分是否通过过滤
func (e *Eval) MatchInteraction(it core.Interaction) (bool, error) {
	if e == nil || e.prg == nil {
		return true, nil
	}
	return e.eval(map[string]any{
		"book": map[string]any{},
		"interaction": map[string]any{
			"user_id": it.UserID,
			"item_id": it.ItemID,
			"rating":  it.Rating,
		},
	})
}

func (e *Eval) eval(input map[string]any) (bool, error) {
	out, _, err := e.prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// FilterBooks 返回通过表达式的书，保持原有顺序
func FilterBooks(e *Eval, books []core.Book) ([]core.Book, error) {
	if e == nil || e.prg == nil {
		return books, nil
	}
	out := make([]core.Book, 0, len(books))
	for _, b := range books {
		ok, err := e.MatchBook(b)
		if err != nil {
			return nil, fmt.Errorf("book %q: %w", b.ID, err)
		}
		if ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// FilterInteractions 返回通过表达式的评分，保持原有顺序
func FilterInteractions(e *Eval, interactions []core.Interaction) ([]core.Interaction, error) {
	if e == nil || e.prg == nil {
		return interactions, nil
	}
	out := make([]core.Interaction, 0, len(interactions))
	for _, it := range interactions {
		ok, err := e.MatchInteraction(it)
		if err != nil {
			return nil, fmt.Errorf("interaction %s/%s: %w", it.UserID, it.ItemID, err)
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}
