package server

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Evaluator runs @py code with yaegi. Each evaluation gets a fresh
// interpreter with the standard library and a "mush" package bound to the
// caller.
type Evaluator struct {
	game    *Game
	timeout time.Duration
}

// NewEvaluator creates an evaluator. A zero timeout means five seconds.
func NewEvaluator(g *Game, timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Evaluator{game: g, timeout: timeout}
}

// Eval evaluates src as caller and renders the value of its last
// expression. Statements without a value render as "<nil>".
func (e *Evaluator) Eval(ctx context.Context, caller gamedb.DBRef, src string) (res string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", err
	}
	if err := i.Use(e.exports(caller)); err != nil {
		return "", err
	}
	if _, err := i.Eval(`import "mush"`); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	v, err := i.EvalWithContext(ctx, src)
	if err != nil {
		return "", err
	}
	if !v.IsValid() || !v.CanInterface() {
		return "<nil>", nil
	}
	return fmt.Sprint(v.Interface()), nil
}

func (e *Evaluator) exports(caller gamedb.DBRef) interp.Exports {
	g := e.game
	here := gamedb.Nothing
	if obj, ok := g.DB.Get(caller); ok {
		here = obj.Location
	}
	me := func() int { return int(caller) }
	location := func() int { return int(here) }
	msg := func(text string) { g.Msg(caller, text) }
	find := func(name string) int { return int(g.DB.Match(caller, name)) }
	describe := func(ref int) string {
		obj, ok := g.DB.Get(gamedb.DBRef(ref))
		if !ok {
			return ""
		}
		return fmt.Sprintf("%s %s %s", obj.Name(), obj.Type, obj.Description)
	}
	return interp.Exports{
		"mush/mush": {
			"Me":       reflect.ValueOf(me),
			"Here":     reflect.ValueOf(location),
			"Msg":      reflect.ValueOf(msg),
			"Find":     reflect.ValueOf(find),
			"Describe": reflect.ValueOf(describe),
		},
	}
}
