package evaluator

import (
	"fmt"
	"sort"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/starlark"

	"github.com/akolk/loki-nexus2/query"
)

func rowsValue(rows []query.Row) (starlark.Value, error) {
	elems := make([]starlark.Value, 0, len(rows))
	for _, row := range rows {
		v, err := toValue(map[string]any(row))
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return starlark.NewList(elems), nil
}

func toValue(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int32:
		return starlark.MakeInt64(int64(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float32:
		return starlark.Float(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []byte:
		return starlark.String(x), nil
	case time.Time:
		return starlark.String(x.Format(time.RFC3339Nano)), nil
	case []any:
		elems := make([]starlark.Value, 0, len(x))
		for _, e := range x {
			sv, err := toValue(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(x))
		for _, k := range keys {
			sv, err := toValue(x[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return starlark.String(fmt.Sprint(v)), nil
}

func encode(thread *starlark.Thread, v starlark.Value) (string, error) {
	out, err := starlark.Call(thread, json.Module.Members["encode"], starlark.Tuple{v}, nil)
	if err != nil {
		return "", err
	}
	s, _ := starlark.AsString(out)
	return s, nil
}

// toOutcome reads {"type": ..., "content": ...}. A bare list is taken as
// dataframe rows.
func toOutcome(thread *starlark.Thread, v starlark.Value) (Outcome, error) {
	switch x := v.(type) {
	case *starlark.List:
		content, err := encode(thread, x)
		if err != nil {
			return Outcome{}, executionError(err)
		}
		return Outcome{Kind: KindDataFrame, Content: content}, nil

	case *starlark.Dict:
		tv, found, err := x.Get(starlark.String("type"))
		if err != nil || !found {
			return Outcome{}, &ExecutionError{Msg: "result dict has no 'type' key"}
		}
		kindStr, ok := starlark.AsString(tv)
		kind := Kind(kindStr)
		if !ok || !kind.valid() {
			return Outcome{}, &ExecutionError{Msg: fmt.Sprintf("result type %s is not one of dataframe, picture, html, plotly, folium", tv)}
		}

		cv, found, err := x.Get(starlark.String("content"))
		if err != nil {
			return Outcome{}, executionError(err)
		}
		if !found || cv == starlark.None {
			return Outcome{Kind: kind}, nil
		}
		if s, ok := starlark.AsString(cv); ok {
			return Outcome{Kind: kind, Content: s}, nil
		}
		content, err := encode(thread, cv)
		if err != nil {
			return Outcome{}, executionError(err)
		}
		return Outcome{Kind: kind, Content: content}, nil
	}

	return Outcome{}, &ExecutionError{Msg: fmt.Sprintf("result must be a dict with 'type' and 'content', got %s", v.Type())}
}
